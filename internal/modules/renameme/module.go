// Package renameme is the skeleton to copy when writing a new processing
// module. Rename the package and type, register your own plugin key in
// init(), and add real processing logic that increments the counter.
// `daqmod create` stamps out copies of this package automatically.
package renameme

import (
	"context"

	"github.com/alessandrothea/daqmod/pkg/appfwk"
	"github.com/alessandrothea/daqmod/pkg/opmon"
)

// PluginKey is the registry key this module is discovered under.
const PluginKey = "renameme"

func init() {
	appfwk.MustRegister(PluginKey, func(name string) (appfwk.Module, error) {
		return New(name), nil
	})
}

// RenameMe is a placeholder module: it accepts configuration and publishes
// operational counters, but performs no processing. The counter's update
// path belongs to the real logic a derived module adds.
type RenameMe struct {
	name     string
	commands *appfwk.CommandTable
	amount   *opmon.Counter
}

// New constructs the module and registers its "conf" command handler.
func New(name string) *RenameMe {
	m := &RenameMe{
		name:     name,
		commands: appfwk.NewCommandTable(name),
		amount:   opmon.NewCounter(),
	}
	m.commands.MustRegister("conf", m.doConf)
	return m
}

// Name returns the module instance name.
func (m *RenameMe) Name() string { return m.name }

// Init ignores the module configuration.
func (m *RenameMe) Init(_ context.Context, _ *appfwk.ModuleConfiguration) error {
	return nil
}

// Commands returns the module's command table.
func (m *RenameMe) Commands() *appfwk.CommandTable { return m.commands }

// Close releases nothing; the placeholder holds no resources.
func (m *RenameMe) Close() error { return nil }

// CollectOpmon reads the cumulative amount and takes the since-last-call
// window, resetting it to zero.
func (m *RenameMe) CollectOpmon() opmon.Snapshot {
	return opmon.SnapshotOf(m.name, m.amount)
}

// RestoreOpmon returns an unpublished window amount to the counter.
func (m *RenameMe) RestoreOpmon(n int64) {
	m.amount.Restore(n)
}

// doConf ignores its payload; do not pass an argument.
func (m *RenameMe) doConf(_ context.Context, _ []byte) error {
	return nil
}
