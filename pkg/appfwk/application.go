package appfwk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/alessandrothea/daqmod/internal/config"
	"github.com/alessandrothea/daqmod/internal/metrics"
	"github.com/alessandrothea/daqmod/pkg/opmon"
)

// JournalStore is the opmon journal as the application consumes it.
type JournalStore interface {
	opmon.Journal
	Prune() error
	DBPath() string
	Close() error
}

// Application wires configured modules to the opmon collector, the metrics
// endpoint and the configuration watcher, and drives their lifecycle.
type Application struct {
	cfg     *config.Config
	session string
	modules []Module
	pub     opmon.Publisher
	journal JournalStore // nil when journalling is disabled
	httpSrv *http.Server // nil when MetricsAddr == ""
}

// New instantiates every configured module through the factory registry.
// The publisher is built by the caller so the CLI decides transport; the
// journal may be nil.
func New(cfg *config.Config, pub opmon.Publisher, journal JournalStore) (*Application, error) {
	if len(cfg.Modules) == 0 {
		return nil, fmt.Errorf("appfwk: no modules configured")
	}

	modules := make([]Module, 0, len(cfg.Modules))
	for _, spec := range cfg.Modules {
		factory, ok := Resolve(spec.Plugin)
		if !ok {
			return nil, fmt.Errorf("appfwk: unknown plugin %q for module %q (registered: %v)",
				spec.Plugin, spec.Name, Keys())
		}
		m, err := factory(spec.Name)
		if err != nil {
			return nil, fmt.Errorf("appfwk: construct module %q: %w", spec.Name, err)
		}
		modules = append(modules, m)
	}

	a := &Application{
		cfg:     cfg,
		session: uuid.NewString(),
		modules: modules,
		pub:     pub,
		journal: journal,
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		a.httpSrv = &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  30 * time.Second,
		}
	}

	return a, nil
}

// Session returns the run identifier stamped into opmon snapshots.
func (a *Application) Session() string { return a.session }

// Run initialises all modules, dispatches their configuration, then serves
// metrics and collects opmon until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.initModules(ctx); err != nil {
		return err
	}
	defer a.closeModules()

	if err := a.Configure(ctx, a.cfg.Modules); err != nil {
		return err
	}

	if a.httpSrv != nil {
		go func() {
			log.Info().Str("addr", a.cfg.MetricsAddr).Msg("metrics server listening")
			if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	collector := opmon.NewCollector(a.session, a.cfg.OpmonInterval, a.collectables(), a.pub, a.journal)
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		collector.Run(ctx)
	}()

	if a.cfg.WatchConfig && a.cfg.Path != "" {
		go a.watchConfig(ctx)
	}
	if a.journal != nil {
		go a.runJanitor(ctx)
	}

	log.Info().
		Str("session", a.session).
		Int("modules", len(a.modules)).
		Str("publisher", a.pub.Name()).
		Str("opmon_interval", a.cfg.OpmonInterval.String()).
		Bool("journal", a.journal != nil).
		Msg("application started")

	<-ctx.Done()
	<-collectorDone
	log.Info().Str("session", a.session).Msg("application stopped")
	return nil
}

// Configure dispatches the "conf" command to every module named in specs.
// Specs for unknown module names are skipped with a warning so a reloaded
// file cannot add instances at runtime.
func (a *Application) Configure(ctx context.Context, specs []config.ModuleSpec) error {
	byName := make(map[string]Module, len(a.modules))
	for _, m := range a.modules {
		byName[m.Name()] = m
	}

	for _, spec := range specs {
		m, ok := byName[spec.Name]
		if !ok {
			log.Warn().Str("module", spec.Name).Msg("conf spec for unknown module instance, skipped")
			continue
		}
		payload, err := json.Marshal(spec.Conf)
		if err != nil {
			return fmt.Errorf("appfwk: encode conf for %q: %w", spec.Name, err)
		}
		if err := m.Commands().Dispatch(ctx, "conf", payload); err != nil {
			return fmt.Errorf("appfwk: configure %q: %w", spec.Name, err)
		}
		log.Debug().Str("module", spec.Name).Msg("configured")
	}
	return nil
}

// initModules calls Init on every module in declaration order. On failure
// the already-initialised prefix is closed and the error returned.
func (a *Application) initModules(ctx context.Context) error {
	for i, m := range a.modules {
		mcfg := &ModuleConfiguration{Session: a.session}
		if raw, err := json.Marshal(a.cfg.Modules[i].Conf); err == nil {
			mcfg.Raw = raw
		}
		if err := m.Init(ctx, mcfg); err != nil {
			for j := i - 1; j >= 0; j-- {
				if cerr := a.modules[j].Close(); cerr != nil {
					log.Warn().Err(cerr).Str("module", a.modules[j].Name()).Msg("close after failed init")
				}
			}
			metrics.ModulesActive.Set(0)
			return fmt.Errorf("appfwk: init module %q: %w", m.Name(), err)
		}
		metrics.ModulesActive.Inc()
		log.Info().Str("module", m.Name()).Strs("commands", m.Commands().Names()).Msg("module initialised")
	}
	return nil
}

// closeModules closes modules in reverse declaration order.
func (a *Application) closeModules() {
	for i := len(a.modules) - 1; i >= 0; i-- {
		m := a.modules[i]
		if err := m.Close(); err != nil {
			log.Warn().Err(err).Str("module", m.Name()).Msg("module close failed")
		}
		metrics.ModulesActive.Dec()
	}
}

// collectables returns the modules that expose opmon counters.
func (a *Application) collectables() []opmon.Collectable {
	var out []opmon.Collectable
	for _, m := range a.modules {
		if c, ok := m.(opmon.Collectable); ok {
			out = append(out, c)
		}
	}
	return out
}

// runJanitor prunes the journal and refreshes its size gauge periodically.
func (a *Application) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.journal.Prune(); err != nil {
				log.Warn().Err(err).Msg("janitor: journal prune failed")
			}
			if path := a.journal.DBPath(); path != "" {
				if info, err := os.Stat(path); err == nil {
					metrics.JournalDBSizeBytes.Set(float64(info.Size()))
				}
			}
		}
	}
}

// Close shuts down the metrics server. Modules are closed by Run.
func (a *Application) Close() {
	if a.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.httpSrv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown error")
		}
	}
}

// configDir returns the directory to watch for the config file; fsnotify
// watches directories so editors that replace the file are still seen.
func (a *Application) configDir() string {
	return filepath.Dir(a.cfg.Path)
}
