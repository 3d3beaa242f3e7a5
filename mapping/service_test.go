package mapping

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/effectus/fieldmap/mapper"
	"github.com/effectus/fieldmap/source"
	"github.com/effectus/fieldmap/sources"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *prometheus.Registry, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	reg := prometheus.NewRegistry()
	return NewService(WithLogger(logger), WithRegisterer(reg)), reg, hook
}

func TestServiceBeforeLoad(t *testing.T) {
	svc, _, _ := newTestService(t)
	assert.Nil(t, svc.Snapshot())

	ft, err := svc.Lookup().Get("anything")
	require.NoError(t, err)
	assert.Nil(t, ft)
}

func TestServiceLoad(t *testing.T) {
	svc, _, hook := newTestService(t)

	snap, err := svc.Load([]byte(sampleMapping))
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Version)
	assert.Same(t, snap, svc.Snapshot())
	assert.Equal(t, Stats{Fields: 7, Aliases: 1, Runtime: 1}, snap.Stats())
	assert.Equal(t, []string{"day"}, snap.RuntimeNames())

	lookup := svc.Lookup()

	ft, err := lookup.Get("author")
	require.NoError(t, err)
	require.NotNil(t, ft)
	assert.Equal(t, "user.name", ft.Name())

	ft, err = lookup.Get("attrs.color")
	require.NoError(t, err)
	require.NotNil(t, ft)
	assert.Equal(t, "attrs.color", ft.Name())

	paths, err := lookup.SourcePaths("all_text")
	require.NoError(t, err)
	assert.Equal(t, []string{"all_text", "message", "title"}, paths)

	paths, err = lookup.SourcePaths("title.raw")
	require.NoError(t, err)
	assert.Equal(t, []string{"title"}, paths)

	assert.Equal(t, []string{"user.age", "user.name"}, lookup.SimpleMatchToFullName("user.*"))

	values, err := lookup.Values("day", source.FromBytes([]byte(`{"timestamp": "2024-03-01T10:00:00Z"}`)))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"2024-03-01"}, values)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "mapping updated", entry.Message)
	assert.Equal(t, OperationLoad, entry.Data["operation"])
	assert.Equal(t, snap.ID.String(), entry.Data["snapshot"])
}

func TestServiceLoadReplacesEverything(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Load([]byte(sampleMapping))
	require.NoError(t, err)

	snap, err := svc.Load([]byte("properties: {other: {type: long}}"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Version)
	assert.Equal(t, []string{"other"}, svc.Lookup().Names())
}

func TestServiceRejectsInvalidUpdates(t *testing.T) {
	tests := map[string]string{
		"alias to itself":       "properties: {a: {type: alias, path: a}}",
		"alias to alias":        "properties: {k: {type: keyword}, a: {type: alias, path: b}, b: {type: alias, path: k}}",
		"alias to missing":      "properties: {a: {type: alias, path: nope}}",
		"copy to alias":         "properties: {k: {type: keyword, copy_to: a}, a: {type: alias, path: k}}",
		"runtime removal":       "runtime: {day: null}",
		"runtime unknown type":  "runtime: {day: {type: geo_point}}",
		"runtime bad script":    "runtime: {day: {type: keyword, script: 'source.'}}",
		"runtime name conflict": "runtime: {obj: {type: composite, script: '{}', fields: {x: {type: long}}}, obj.x: {type: long}}",
		"malformed yaml":        "properties: {a: [",
	}
	for name, mapping := range tests {
		t.Run(name, func(t *testing.T) {
			svc, reg, hook := newTestService(t)
			before, err := svc.Load([]byte("properties: {k: {type: keyword}}"))
			require.NoError(t, err)

			_, err = svc.Load([]byte(mapping))
			require.Error(t, err)
			assert.Same(t, before, svc.Snapshot())
			assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

			updates := testutilCount(t, reg, OperationLoad, resultRejected)
			assert.Equal(t, 1.0, updates)
		})
	}
}

func TestServiceAliasErrors(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Load([]byte("properties: {k: {type: keyword}, a: {type: alias, path: b}, b: {type: alias, path: k}}"))
	var parseErr *mapper.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "a", parseErr.Field)
	assert.Contains(t, err.Error(), "an alias cannot refer to another alias")

	_, err = svc.Load([]byte("runtime: {obj: {type: composite, script: '{}', fields: {x: {type: long}}}, obj.x: {type: long}}"))
	var conflict *mapper.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "obj.x", conflict.Field)
}

func TestServiceMerge(t *testing.T) {
	svc, reg, _ := newTestService(t)
	_, err := svc.Load([]byte(sampleMapping))
	require.NoError(t, err)

	snap, err := svc.Merge([]byte(`
properties:
  summary: {type: text, copy_to: title}
  user:
    properties:
      email: {type: keyword}
  writer: {type: alias, path: user.email}
  author: {type: alias, path: user.email}
runtime:
  day: null
  hour: {type: long, script: "int(source.timestamp[11:13])"}
`))
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Version)
	assert.Equal(t, []string{"hour"}, snap.RuntimeNames())

	lookup := svc.Lookup()
	ft, err := lookup.Get("author")
	require.NoError(t, err)
	assert.Equal(t, "user.email", ft.Name())

	ft, err = lookup.Get("user.name")
	require.NoError(t, err)
	assert.NotNil(t, ft)

	ft, err = lookup.Get("day")
	require.NoError(t, err)
	assert.Nil(t, ft)

	paths, err := lookup.SourcePaths("title.raw")
	require.NoError(t, err)
	assert.Equal(t, []string{"summary", "title"}, paths)

	values, err := lookup.Values("hour", source.FromMap(map[string]interface{}{"timestamp": "2024-03-01T10:00:00Z"}))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(10)}, values)

	assert.Equal(t, 1.0, testutilCount(t, reg, OperationMerge, resultApplied))
	assert.Equal(t, 2.0, testutil.ToFloat64(svc.metrics.version))
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.fields.WithLabelValues("runtime")))
}

func TestServiceMergeRejectsTypeChange(t *testing.T) {
	svc, _, _ := newTestService(t)
	before, err := svc.Load([]byte(sampleMapping))
	require.NoError(t, err)

	_, err = svc.Merge([]byte("properties: {user: {properties: {age: {type: keyword}}}}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapper [user.age] cannot be changed from type [integer] to [keyword]")
	assert.Same(t, before, svc.Snapshot())
}

func TestServiceMergeWithoutMapping(t *testing.T) {
	svc, _, _ := newTestService(t)
	snap, err := svc.Merge([]byte("runtime: {gone: null, kept: {type: keyword}}"))
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, snap.RuntimeNames())
}

func TestServiceLoadFrom(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mapping.yaml"), []byte(sampleMapping), 0o644))

	svc, reg, _ := newTestService(t)
	snap, err := svc.LoadFrom(context.Background(), sources.Config{
		Type:    sources.FileType,
		Config:  map[string]interface{}{"path": "mapping.yaml"},
		BaseDir: dir,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, snap.Stats().Fields)

	_, err = svc.LoadFrom(context.Background(), sources.Config{Type: "ftp"})
	require.Error(t, err)
	assert.Equal(t, 1.0, testutilCount(t, reg, OperationLoad, resultRejected))
}

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mapping.yaml")
	require.NoError(t, os.WriteFile(path, []byte("properties: {a: {type: keyword}}"), 0o644))

	svc, _, _ := newTestService(t)
	_, err := svc.Load([]byte("properties: {a: {type: keyword}}"))
	require.NoError(t, err)

	var reloads atomic.Int32
	w := NewWatcher(svc, path, 20*time.Millisecond)
	w.OnReload = func(*Snapshot, error) { reloads.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// The watch may not be registered yet, so keep writing until a reload happens.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("properties: {b: {type: long}}"), 0o644)
		return reloads.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		names := svc.Lookup().Names()
		return len(names) == 1 && names[0] == "b"
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fieldmap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source:
  type: file
  config:
    path: mapping.yaml
watch:
  enabled: true
  debounce: 100ms
log:
  level: debug
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, sources.FileType, cfg.Source.Type)
	assert.Equal(t, dir, cfg.Source.BaseDir)
	assert.True(t, cfg.Watch.Enabled)
	debounce, err := cfg.Watch.DebounceDuration()
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, debounce)
	assert.Equal(t, "debug", cfg.Log.Level)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"source": {"type": "file"}, "watch": {"debounce": "soon"}}`), 0o644))
	_, err = LoadConfig(bad)
	assert.ErrorContains(t, err, "watch.debounce")

	untyped := filepath.Join(dir, "untyped.yaml")
	require.NoError(t, os.WriteFile(untyped, []byte("watch: {enabled: true}"), 0o644))
	_, err = LoadConfig(untyped)
	assert.EqualError(t, err, "source.type is required")
}

func testutilCount(t *testing.T, reg *prometheus.Registry, operation, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "fieldmap_mapping_updates_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["operation"] == operation && labels["result"] == result {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
