package mapping

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/effectus/fieldmap/mapper"
	"github.com/effectus/fieldmap/runtimefield"
	"github.com/effectus/fieldmap/script"
	"github.com/effectus/fieldmap/sources"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Operations recorded in logs and metrics.
const (
	OperationLoad  = "load"
	OperationMerge = "merge"
)

var emptyLookup, _ = mapper.NewLookup(nil, nil, nil)

// Service holds the current mapping snapshot. Readers never block: every
// update builds a complete new snapshot and swaps it in, or leaves the
// current one in place when any part of the update is invalid.
type Service struct {
	parserContext *mapper.ParserContext
	sources       *sources.Registry
	logger        logrus.FieldLogger
	metrics       *metrics

	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	registry   mapper.ParserRegistry
	compiler   *script.Compiler
	sources    *sources.Registry
	logger     logrus.FieldLogger
	registerer prometheus.Registerer
}

// WithParserRegistry replaces the built-in runtime field types.
func WithParserRegistry(registry mapper.ParserRegistry) Option {
	return func(o *serviceOptions) { o.registry = registry }
}

// WithCompiler shares a script compiler between services.
func WithCompiler(compiler *script.Compiler) Option {
	return func(o *serviceOptions) { o.compiler = compiler }
}

// WithSources sets the registry used by LoadFrom.
func WithSources(registry *sources.Registry) Option {
	return func(o *serviceOptions) { o.sources = registry }
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *serviceOptions) { o.logger = logger }
}

// WithRegisterer registers the service metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *serviceOptions) { o.registerer = reg }
}

// NewService creates a service without a mapping.
func NewService(opts ...Option) *Service {
	o := serviceOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = runtimefield.DefaultRegistry()
	}
	if o.sources == nil {
		o.sources = sources.Default()
	}
	if o.logger == nil {
		o.logger = logrus.StandardLogger()
	}
	return &Service{
		parserContext: mapper.NewParserContext(o.registry, o.compiler),
		sources:       o.sources,
		logger:        o.logger,
		metrics:       newMetrics(o.registerer),
	}
}

// Snapshot returns the current snapshot, nil before the first load.
func (s *Service) Snapshot() *Snapshot {
	return s.current.Load()
}

// Lookup returns the resolver of the current snapshot. Before the first
// load it resolves nothing.
func (s *Service) Lookup() *mapper.Lookup {
	if snap := s.current.Load(); snap != nil {
		return snap.Lookup()
	}
	return emptyLookup
}

// Load replaces the whole mapping with data. A null runtime entry is
// rejected.
func (s *Service) Load(data []byte) (*Snapshot, error) {
	return s.update(OperationLoad, func(current *Snapshot) (*Snapshot, error) {
		doc, err := ParseDocument(data)
		if err != nil {
			return nil, err
		}
		runtime, err := mapper.ParseRuntimeFields(doc.Runtime, s.parserContext, "", nil, false)
		if err != nil {
			return nil, err
		}
		return buildSnapshot(nextVersion(current), doc.Fields, doc.Aliases, runtime.Apply(nil))
	})
}

// LoadFrom fetches the mapping from a configured source and loads it.
func (s *Service) LoadFrom(ctx context.Context, cfg sources.Config) (*Snapshot, error) {
	data, err := sources.Fetch(ctx, s.sources, cfg, s.logger)
	if err != nil {
		s.metrics.recordUpdate(OperationLoad, err)
		s.logger.WithError(err).WithField("source", cfg.Label()).Warn("mapping fetch failed")
		return nil, err
	}
	return s.Load(data)
}

// Merge applies a mapping update on top of the current mapping. New
// concrete fields are added and an existing field must keep its type while
// taking the update's copy_to. Aliases are added or repointed. Runtime
// fields are added or replaced, and a null entry removes one.
func (s *Service) Merge(data []byte) (*Snapshot, error) {
	return s.update(OperationMerge, func(current *Snapshot) (*Snapshot, error) {
		doc, err := ParseDocument(data)
		if err != nil {
			return nil, err
		}
		runtime, err := mapper.ParseRuntimeFields(doc.Runtime, s.parserContext, "", nil, true)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return buildSnapshot(1, doc.Fields, doc.Aliases, runtime.Apply(nil))
		}
		fields, err := mergeFields(current.fields, doc.Fields)
		if err != nil {
			return nil, err
		}
		return buildSnapshot(current.Version+1, fields, mergeAliases(current.aliases, doc.Aliases), runtime.Apply(current.runtime))
	})
}

func (s *Service) update(operation string, build func(current *Snapshot) (*Snapshot, error)) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.current.Load()
	next, err := build(current)
	s.metrics.recordUpdate(operation, err)
	if err != nil {
		s.logger.WithError(err).WithField("operation", operation).Warn("mapping update rejected")
		return nil, fmt.Errorf("%s mapping: %w", operation, err)
	}

	s.current.Store(next)
	s.metrics.recordSnapshot(next)
	stats := next.Stats()
	s.logger.WithFields(logrus.Fields{
		"operation": operation,
		"snapshot":  next.ID.String(),
		"version":   next.Version,
		"fields":    stats.Fields,
		"aliases":   stats.Aliases,
		"runtime":   stats.Runtime,
	}).Info("mapping updated")
	return next, nil
}

func nextVersion(current *Snapshot) int64 {
	if current == nil {
		return 1
	}
	return current.Version + 1
}

func mergeFields(existing, incoming []mapper.Field) ([]mapper.Field, error) {
	index := make(map[string]int, len(existing))
	merged := append([]mapper.Field(nil), existing...)
	for i, f := range merged {
		index[f.Name()] = i
	}
	for _, f := range incoming {
		i, ok := index[f.Name()]
		if !ok {
			index[f.Name()] = len(merged)
			merged = append(merged, f)
			continue
		}
		if from, to := merged[i].Type.TypeName(), f.Type.TypeName(); from != to {
			return nil, &mapper.ParseError{
				Field:  f.Name(),
				Type:   to,
				Err:    mapper.ErrInvalidMapping,
				Detail: fmt.Sprintf("mapper [%s] cannot be changed from type [%s] to [%s]", f.Name(), from, to),
			}
		}
		merged[i] = f
	}
	return merged, nil
}

func mergeAliases(existing, incoming []mapper.Alias) []mapper.Alias {
	index := make(map[string]int, len(existing))
	merged := append([]mapper.Alias(nil), existing...)
	for i, a := range merged {
		index[a.Name] = i
	}
	for _, a := range incoming {
		if i, ok := index[a.Name]; ok {
			merged[i] = a
			continue
		}
		index[a.Name] = len(merged)
		merged = append(merged, a)
	}
	return merged
}
