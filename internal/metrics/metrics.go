// Package metrics defines package-level Prometheus metric variables for
// daqmod. Call Register() once at startup to expose them on the default
// registry, or RegisterWith() to use an isolated registry in tests.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// CommandsDispatched counts commands dispatched, by module and command.
	CommandsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "daqmod_commands_dispatched_total",
		Help: "Commands dispatched to modules, by module and command name.",
	}, []string{"module", "command"})

	// CommandErrors counts command handler failures, by module and command.
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "daqmod_command_errors_total",
		Help: "Command handler failures, by module and command name.",
	}, []string{"module", "command"})

	// SnapshotsPublished counts opmon snapshots successfully published.
	SnapshotsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "daqmod_opmon_snapshots_published_total",
		Help: "Opmon snapshots successfully handed to the publisher.",
	})

	// PublishErrors counts opmon publish failures, by publisher name.
	PublishErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "daqmod_opmon_publish_errors_total",
		Help: "Opmon publish failures, by publisher (log|http|amqp).",
	}, []string{"publisher"})

	// ConfigReloads counts configuration reloads triggered by file changes.
	ConfigReloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "daqmod_config_reloads_total",
		Help: "Configuration reloads, by outcome (ok|error).",
	}, []string{"outcome"})

	// ModulesActive is a gauge of currently initialised modules.
	ModulesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "daqmod_modules_active",
		Help: "Number of modules currently initialised.",
	})

	// JournalDBSizeBytes is a gauge of the opmon journal file size on disk.
	JournalDBSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "daqmod_journal_db_size_bytes",
		Help: "Size of the opmon journal bbolt file on disk.",
	})
)

// Register registers all metrics with prometheus.DefaultRegisterer.
// Call once at process startup.
func Register() {
	RegisterWith(prometheus.DefaultRegisterer)
}

// RegisterWith registers all metrics with the given registerer.
// Use an isolated prometheus.NewRegistry() in tests to avoid conflicts.
func RegisterWith(reg prometheus.Registerer) {
	reg.MustRegister(
		CommandsDispatched,
		CommandErrors,
		SnapshotsPublished,
		PublishErrors,
		ConfigReloads,
		ModulesActive,
		JournalDBSizeBytes,
	)
}
