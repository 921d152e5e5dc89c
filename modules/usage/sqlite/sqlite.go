// Package sqlite implements a persistent SQLite-backed usage recorder.
// It uses modernc.org/sqlite (pure Go, no CGO) with WAL mode and a
// single-writer connection pool, accumulating token totals per (day, model).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/usage"
	"gopkg.in/yaml.v3"

	_ "modernc.org/sqlite" // SQLite driver registration
)

func init() {
	core.RegisterModule(&Module{})
}

// Interface guards.
var (
	_ usage.Recorder    = (*recorder)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module implements a SQLite-backed usage recorder registered as the
// "usage.recorder" service.
type Module struct {
	config   Config
	db       *sql.DB
	logger   *slog.Logger
	recorder *recorder
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "usage.sqlite",
		New: func() core.Module { return new(Module) },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("usage.sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}

	if dir := filepath.Dir(m.config.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("usage.sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", m.config.Path)
	if err != nil {
		return fmt.Errorf("usage.sqlite: open %s: %w", m.config.Path, err)
	}

	// SQLite handles one writer at a time; limit pool to 1 connection
	// so PRAGMAs apply consistently.
	db.SetMaxOpenConns(1)

	if m.config.walEnabled() {
		if _, err := db.ExecContext(context.TODO(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return fmt.Errorf("usage.sqlite: enable WAL: %w", err)
		}
	}

	if _, err := db.ExecContext(context.TODO(), fmt.Sprintf("PRAGMA busy_timeout=%d", m.config.BusyTimeout)); err != nil {
		_ = db.Close()
		return fmt.Errorf("usage.sqlite: set busy_timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return err
	}

	m.db = db
	m.recorder = &recorder{db: db}

	ctx.RegisterService("usage.recorder", m.recorder)

	m.logger.Info("sqlite usage module provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
	)

	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}

	if err := m.db.PingContext(context.TODO()); err != nil {
		return fmt.Errorf("usage.sqlite: ping failed: %w", err)
	}

	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("sqlite usage module stopping")
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// Recorder returns the usage.Recorder implementation.
func (m *Module) Recorder() usage.Recorder {
	return m.recorder
}
