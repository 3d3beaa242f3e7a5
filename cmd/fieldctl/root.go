package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/effectus/fieldmap/mapping"
	"github.com/effectus/fieldmap/sources"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// rootOptions holds the flags shared by every command.
type rootOptions struct {
	mappingPath string
	configPath  string
	sourcePath  string
	logLevel    string
	logFormat   string

	config *mapping.Config
	logger *logrus.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "fieldctl",
		Short: "Inspect and resolve field mappings",
		Long: `fieldctl loads a field mapping and answers questions about it.

The mapping comes from one of:
- a mapping document given with --mapping
- a source configuration given with --source
- a fieldctl configuration given with --config`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd.ErrOrStderr())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.mappingPath, "mapping", "m", "", "Mapping document (YAML or JSON)")
	flags.StringVarP(&opts.configPath, "config", "c", "", "fieldctl configuration file")
	flags.StringVar(&opts.sourcePath, "source", "", "Source configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format (text, json)")

	cmd.AddCommand(
		newCheckCmd(opts),
		newResolveCmd(opts),
		newMatchCmd(opts),
		newSourcePathsCmd(opts),
		newValuesCmd(opts),
		newSourcesCmd(),
		newWatchCmd(opts),
	)
	return cmd
}

// setup reads the configuration file, if any, and configures logging.
// Flags take precedence over the configuration file.
func (o *rootOptions) setup(out io.Writer) error {
	if o.configPath != "" {
		cfg, err := mapping.LoadConfig(o.configPath)
		if err != nil {
			return err
		}
		o.config = cfg
	}

	level, format := o.logLevel, o.logFormat
	if o.config != nil {
		if level == "" {
			level = o.config.Log.Level
		}
		if format == "" {
			format = o.config.Log.Format
		}
	}
	logger, err := newLogger(out, level, format)
	if err != nil {
		return err
	}
	o.logger = logger
	return nil
}

func newLogger(out io.Writer, level, format string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)

	if level == "" {
		level = "warn"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	return logger, nil
}

// mappingSource describes where the mapping comes from.
type mappingSource struct {
	// path is set when the mapping is a local file that can be watched.
	path   string
	source *sources.Config
}

func (o *rootOptions) mappingSource() (mappingSource, error) {
	set := 0
	for _, v := range []string{o.mappingPath, o.sourcePath, o.configPath} {
		if v != "" {
			set++
		}
	}
	switch {
	case set == 0:
		return mappingSource{}, fmt.Errorf("one of --mapping, --source or --config is required")
	case set > 1:
		return mappingSource{}, fmt.Errorf("--mapping, --source and --config are mutually exclusive")
	}

	if o.mappingPath != "" {
		return mappingSource{path: o.mappingPath}, nil
	}

	var cfg sources.Config
	if o.sourcePath != "" {
		loaded, err := sources.LoadConfigFile(o.sourcePath)
		if err != nil {
			return mappingSource{}, err
		}
		cfg = loaded
	} else {
		cfg = o.config.Source
	}

	ms := mappingSource{source: &cfg}
	if cfg.Type == sources.FileType {
		provider, err := sources.Create(cfg)
		if err != nil {
			return mappingSource{}, fmt.Errorf("creating source %s: %w", cfg.Label(), err)
		}
		if fp, ok := provider.(*sources.FileProvider); ok {
			ms.path = fp.Path()
		}
		_ = provider.Close()
	}
	return ms, nil
}

func (o *rootOptions) newService(reg prometheus.Registerer) *mapping.Service {
	return mapping.NewService(
		mapping.WithLogger(o.logger),
		mapping.WithRegisterer(reg),
	)
}

// load creates a service and loads the mapping into it.
func (o *rootOptions) load(ctx context.Context, reg prometheus.Registerer) (*mapping.Service, mappingSource, error) {
	ms, err := o.mappingSource()
	if err != nil {
		return nil, ms, err
	}
	svc := o.newService(reg)
	if err := loadInto(ctx, svc, ms); err != nil {
		return nil, ms, err
	}
	return svc, ms, nil
}

func loadInto(ctx context.Context, svc *mapping.Service, ms mappingSource) error {
	if ms.source != nil {
		_, err := svc.LoadFrom(ctx, *ms.source)
		return err
	}
	data, err := os.ReadFile(ms.path)
	if err != nil {
		return fmt.Errorf("reading mapping: %w", err)
	}
	_, err = svc.Load(data)
	return err
}
