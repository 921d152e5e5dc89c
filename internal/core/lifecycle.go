package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// The lifecycle interfaces below are all optional. A module implements
// the ones whose phase it cares about; App feature-detects each phase
// with a type assertion.

// Configurable receives the module's raw YAML config section. Runs
// after instantiation, before Provision.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner runs setup: applying defaults, resolving services from
// the AppContext, loading sub-modules.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator checks that configuration is complete and consistent.
// Runs after Provision and must not have side effects.
type Validator interface {
	Validate() error
}

// Starter begins background work: goroutines, listeners, connections.
// Runs once every module is provisioned and validated.
type Starter interface {
	Start() error
}

// Stopper releases resources. Runs at shutdown in reverse start order.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader applies a live configuration change.
type Reloader interface {
	Reload(ctx *AppContext) error
}
