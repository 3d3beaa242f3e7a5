package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/effectus/fieldmap/source"
	"github.com/effectus/fieldmap/sources"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a mapping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			listNames, _ := cmd.Flags().GetBool("names")

			svc, _, err := opts.load(cmd.Context(), nil)
			if err != nil {
				return err
			}
			snap := svc.Snapshot()
			stats := snap.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mapping ok: %d fields, %d aliases, %d runtime fields\n", stats.Fields, stats.Aliases, stats.Runtime)
			if listNames {
				for _, name := range snap.Lookup().Names() {
					fmt.Fprintln(out, name)
				}
			}
			return nil
		},
	}
	cmd.Flags().Bool("names", false, "List every resolvable field name")
	return cmd
}

// resolved is the outcome of a single name lookup.
type resolved struct {
	Field string            `json:"field"`
	Name  string            `json:"name,omitempty"`
	Type  string            `json:"type,omitempty"`
	Meta  map[string]string `json:"meta,omitempty"`
}

func newResolveCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve FIELD...",
		Short: "Resolve field names to their field types",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			svc, _, err := opts.load(cmd.Context(), nil)
			if err != nil {
				return err
			}
			lookup := svc.Lookup()

			results := make([]resolved, 0, len(args))
			for _, field := range args {
				ft, err := lookup.Get(field)
				if err != nil {
					return fmt.Errorf("resolving %s: %w", field, err)
				}
				r := resolved{Field: field}
				if ft != nil {
					r.Name, r.Type, r.Meta = ft.Name(), ft.TypeName(), ft.Meta()
				}
				results = append(results, r)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, results)
			}
			for _, r := range results {
				if r.Type == "" {
					fmt.Fprintf(out, "%s\tunmapped\n", r.Field)
					continue
				}
				fmt.Fprintf(out, "%s\t%s\t%s\n", r.Field, r.Type, r.Name)
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}

func newMatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "match PATTERN",
		Short: "List the field names matching a wildcard pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := opts.load(cmd.Context(), nil)
			if err != nil {
				return err
			}
			for _, name := range svc.Lookup().SimpleMatchToFullName(args[0]) {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newSourcePathsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "source-paths FIELD",
		Short: "Show where the values of a field are stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := opts.load(cmd.Context(), nil)
			if err != nil {
				return err
			}
			lookup := svc.Lookup()

			field := args[0]
			ft, err := lookup.Get(field)
			if err != nil {
				return fmt.Errorf("resolving %s: %w", field, err)
			}
			if ft != nil {
				field = ft.Name()
			}
			paths, err := lookup.SourcePaths(field)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}

func newValuesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "values FIELD...",
		Short: "Extract field values from a JSON document",
		Long: `Extract the values of each field from a JSON document.

Runtime fields run their scripts against the document, every other field
is read from its source paths.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docPath, _ := cmd.Flags().GetString("doc")
			inline, _ := cmd.Flags().GetString("doc-json")

			raw, err := readDocument(cmd.InOrStdin(), docPath, inline)
			if err != nil {
				return err
			}
			if !json.Valid(raw) {
				return fmt.Errorf("document is not valid JSON")
			}

			svc, _, err := opts.load(cmd.Context(), nil)
			if err != nil {
				return err
			}
			lookup := svc.Lookup()
			src := source.FromBytes(raw)

			values := make(map[string][]interface{}, len(args))
			for _, field := range args {
				v, err := lookup.Values(field, src)
				if err != nil {
					return fmt.Errorf("values of %s: %w", field, err)
				}
				if v == nil {
					v = []interface{}{}
				}
				values[field] = v
			}
			return writeJSON(cmd.OutOrStdout(), values)
		},
	}
	cmd.Flags().String("doc", "-", "JSON document file, - for stdin")
	cmd.Flags().String("doc-json", "", "Inline JSON document")
	return cmd
}

func readDocument(stdin io.Reader, path, inline string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading document: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	return data, nil
}

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources [TYPE]",
		Short: "List mapping source types or show the configuration of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			registry := sources.Default()
			if len(args) == 0 {
				fmt.Fprintln(out, strings.Join(registry.Types(), "\n"))
				return nil
			}

			schema, ok := registry.ConfigSchema(args[0])
			if !ok {
				return fmt.Errorf("unknown source type: %s", args[0])
			}
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(schema); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
