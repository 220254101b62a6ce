// Package appfwk holds the contracts between the application and its
// pluggable processing modules: the module interface, the named factory
// registry, and per-module command dispatch.
package appfwk

import (
	"context"
	"encoding/json"
)

// ModuleConfiguration is the shared configuration object handed to every
// module at startup. Raw holds the module's own section of the application
// configuration; modules that take no configuration may ignore it.
type ModuleConfiguration struct {
	// Session identifies the current application run.
	Session string

	// Raw is the module's configuration section, verbatim.
	Raw json.RawMessage
}

// Module is a pluggable unit of processing logic, lifecycle-managed by the
// application. Implementations register their command handlers in their
// constructor and must be ready to receive commands after Init returns.
type Module interface {
	// Name returns the instance name the module was constructed with.
	Name() string

	// Init prepares the module for operation. Called once before any
	// command is dispatched.
	Init(ctx context.Context, mcfg *ModuleConfiguration) error

	// Commands returns the module's command table.
	Commands() *CommandTable

	// Close releases module resources. Called once during shutdown.
	Close() error
}
