package appfwk

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/alessandrothea/daqmod/internal/config"
	"github.com/alessandrothea/daqmod/internal/metrics"
)

// reloadLimit absorbs editor write bursts: most editors emit several
// write/create events per save.
var reloadLimit = rate.Every(2 * time.Second)

// watchConfig watches the configuration file and re-dispatches "conf" to
// all modules when it changes. Reload failures are logged, never fatal.
func (a *Application) watchConfig(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Msg("config watcher setup failed")
		return
	}
	defer watcher.Close()

	if err := watcher.Add(a.configDir()); err != nil {
		log.Warn().Err(err).Str("dir", a.configDir()).Msg("config watcher add failed")
		return
	}

	limiter := rate.NewLimiter(reloadLimit, 1)
	target := filepath.Base(a.cfg.Path)

	log.Info().Str("path", a.cfg.Path).Msg("watching configuration for changes")

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !limiter.Allow() {
				continue
			}
			// Small delay so the writer finishes before we read the file.
			time.Sleep(100 * time.Millisecond)
			a.reloadConfig(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

// reloadConfig re-reads the config file and re-dispatches "conf". Only the
// module conf payloads take effect at runtime; operational settings need a
// restart.
func (a *Application) reloadConfig(ctx context.Context) {
	cfg, err := config.Load(a.cfg.Path)
	if err != nil {
		metrics.ConfigReloads.WithLabelValues("error").Inc()
		log.Warn().Err(err).Msg("config reload failed")
		return
	}
	if err := a.Configure(ctx, cfg.Modules); err != nil {
		metrics.ConfigReloads.WithLabelValues("error").Inc()
		log.Warn().Err(err).Msg("reconfigure failed")
		return
	}
	metrics.ConfigReloads.WithLabelValues("ok").Inc()
	log.Info().Int("modules", len(cfg.Modules)).Msg("configuration reloaded")
}
