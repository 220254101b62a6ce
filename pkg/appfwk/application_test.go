package appfwk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alessandrothea/daqmod/internal/config"
	"github.com/alessandrothea/daqmod/pkg/opmon"
)

type stubModule struct {
	name     string
	commands *CommandTable
	counter  *opmon.Counter

	mu           sync.Mutex
	confPayloads [][]byte
	initCalls    int
	closeCalls   int
	initErr      error
}

func newStubModule(name string) *stubModule {
	m := &stubModule{
		name:     name,
		commands: NewCommandTable(name),
		counter:  opmon.NewCounter(),
	}
	m.commands.MustRegister("conf", func(_ context.Context, payload []byte) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.confPayloads = append(m.confPayloads, payload)
		return nil
	})
	return m
}

func (m *stubModule) Name() string { return m.name }

func (m *stubModule) Init(context.Context, *ModuleConfiguration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initCalls++
	return m.initErr
}

func (m *stubModule) Commands() *CommandTable { return m.commands }

func (m *stubModule) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return nil
}

func (m *stubModule) CollectOpmon() opmon.Snapshot { return opmon.SnapshotOf(m.name, m.counter) }

func (m *stubModule) RestoreOpmon(n int64) { m.counter.Restore(n) }

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]opmon.Snapshot
}

func (p *recordingPublisher) Name() string { return "recording" }

func (p *recordingPublisher) Publish(_ context.Context, batch []opmon.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	copied := make([]opmon.Snapshot, len(batch))
	copy(copied, batch)
	p.batches = append(p.batches, copied)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

// registerStubPlugin registers a factory under key and returns the
// constructed instances.
func registerStubPlugin(t *testing.T, key string) *[]*stubModule {
	t.Helper()
	var made []*stubModule
	MustRegister(key, func(name string) (Module, error) {
		m := newStubModule(name)
		made = append(made, m)
		return m, nil
	})
	return &made
}

func appConfig(specs ...config.ModuleSpec) *config.Config {
	return &config.Config{
		LogLevel:       "error",
		LogFormat:      "json",
		MetricsAddr:    "",
		OpmonInterval:  time.Second,
		OpmonPublisher: "log",
		Modules:        specs,
	}
}

func TestNew_UnknownPlugin(t *testing.T) {
	cfg := appConfig(config.ModuleSpec{Name: "inst", Plugin: "no-such-plugin"})
	_, err := New(cfg, &recordingPublisher{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-plugin")
}

func TestNew_NoModules(t *testing.T) {
	_, err := New(appConfig(), &recordingPublisher{}, nil)
	assert.Error(t, err)
}

func TestApplication_RunLifecycle(t *testing.T) {
	made := registerStubPlugin(t, "app-test-lifecycle")
	cfg := appConfig(config.ModuleSpec{
		Name:   "inst-a",
		Plugin: "app-test-lifecycle",
		Conf:   map[string]any{"threshold": 5},
	})

	pub := &recordingPublisher{}
	app, err := New(cfg, pub, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, app.Session())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool {
		if len(*made) != 1 {
			return false
		}
		m := (*made)[0]
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.initCalls == 1 && len(m.confPayloads) == 1
	}, time.Second, 5*time.Millisecond)

	m := (*made)[0]
	m.mu.Lock()
	assert.JSONEq(t, `{"threshold":5}`, string(m.confPayloads[0]))
	m.mu.Unlock()

	cancel()
	require.NoError(t, <-done)

	m.mu.Lock()
	assert.Equal(t, 1, m.closeCalls)
	m.mu.Unlock()

	// Shutdown performs a final opmon flush stamped with the session.
	require.GreaterOrEqual(t, pub.count(), 1)
	pub.mu.Lock()
	first := pub.batches[0][0]
	pub.mu.Unlock()
	assert.Equal(t, app.Session(), first.Session)
	assert.Equal(t, "inst-a", first.Module)
}

func TestApplication_InitFailureClosesPrefix(t *testing.T) {
	made := registerStubPlugin(t, "app-test-initfail")
	cfg := appConfig(
		config.ModuleSpec{Name: "ok-module", Plugin: "app-test-initfail"},
		config.ModuleSpec{Name: "bad-module", Plugin: "app-test-initfail"},
	)

	app, err := New(cfg, &recordingPublisher{}, nil)
	require.NoError(t, err)
	require.Len(t, *made, 2)
	(*made)[1].initErr = errors.New("boom")

	err = app.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad-module")

	assert.Equal(t, 1, (*made)[0].initCalls)
	assert.Equal(t, 1, (*made)[0].closeCalls, "initialised prefix is closed on failure")
	assert.Equal(t, 0, (*made)[1].closeCalls)
}

func TestReloadConfig_RedispatchesConf(t *testing.T) {
	made := registerStubPlugin(t, "app-test-reload")

	dir := t.TempDir()
	path := filepath.Join(dir, "daqmod.yaml")
	writeFile := func(threshold int) {
		content := fmt.Sprintf(
			"modules:\n  - name: inst\n    plugin: app-test-reload\n    conf:\n      threshold: %d\n", threshold)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	writeFile(1)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	cfg.MetricsAddr = ""

	app, err := New(cfg, &recordingPublisher{}, nil)
	require.NoError(t, err)
	require.NoError(t, app.Configure(context.Background(), cfg.Modules))

	writeFile(2)
	app.reloadConfig(context.Background())

	m := (*made)[0]
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.confPayloads, 2)
	assert.JSONEq(t, `{"threshold":1}`, string(m.confPayloads[0]))
	assert.JSONEq(t, `{"threshold":2}`, string(m.confPayloads[1]))
}

func TestConfigure_SkipsUnknownInstance(t *testing.T) {
	registerStubPlugin(t, "app-test-skip")
	cfg := appConfig(config.ModuleSpec{Name: "inst", Plugin: "app-test-skip"})

	app, err := New(cfg, &recordingPublisher{}, nil)
	require.NoError(t, err)

	specs := []config.ModuleSpec{
		{Name: "inst", Plugin: "app-test-skip", Conf: map[string]any{"x": 1}},
		{Name: "ghost", Plugin: "app-test-skip"},
	}
	assert.NoError(t, app.Configure(context.Background(), specs))
}
