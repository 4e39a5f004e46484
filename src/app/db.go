package app

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/MiniDB/src/cfg"
	"github.com/Blackdeer1524/MiniDB/src/engine"
)

// dbEntrypoint loads the configuration and the logger shared by every
// command working on one database.
type dbEntrypoint struct {
	ConfigPath string
	Fs         afero.Fs

	cfg       cfg.Config
	log       *zap.SugaredLogger
	telemetry *Telemetry
	db        *engine.Engine
}

func (e *dbEntrypoint) init() error {
	config, err := cfg.Load(e.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	e.cfg = config

	e.log, err = NewLogger(config.Environment, config.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	if e.Fs == nil {
		e.Fs = afero.NewOsFs()
	}

	e.telemetry = NewTelemetry()

	return nil
}

func (e *dbEntrypoint) open(ctx context.Context) error {
	db, err := engine.Open(ctx, e.Fs, e.cfg.DataPath, e.cfg.MemoryBudget, e.log)
	if err != nil {
		return fmt.Errorf("open %s: %w", e.cfg.DataPath, err)
	}
	e.db = db

	return nil
}

func (e *dbEntrypoint) Close() error {
	var err error
	if e.db != nil {
		err = e.db.Close()
		e.db = nil
	}

	if e.telemetry != nil {
		ctx := context.Background()
		err = multierr.Combine(
			err,
			e.telemetry.Report(ctx, e.log),
			e.telemetry.Shutdown(ctx),
		)
		e.telemetry = nil
	}

	if e.log != nil {
		// syncing stderr fails on some platforms, it is not worth reporting
		_ = e.log.Sync()
	}

	return err
}

// CreateEntrypoint makes an empty database at the configured path.
type CreateEntrypoint struct {
	dbEntrypoint
}

func NewCreateEntrypoint(configPath string, fs afero.Fs) *CreateEntrypoint {
	return &CreateEntrypoint{dbEntrypoint{ConfigPath: configPath, Fs: fs}}
}

func (e *CreateEntrypoint) Init(context.Context) error {
	return e.init()
}

func (e *CreateEntrypoint) Run(context.Context) error {
	db, err := engine.Create(e.Fs, e.cfg.DataPath, e.cfg.MemoryBudget, e.log)
	if err != nil {
		return fmt.Errorf("create %s: %w", e.cfg.DataPath, err)
	}
	e.db = db

	return nil
}

// CheckEntrypoint opens the database, recovering it if needed, and logs its
// statistics.
type CheckEntrypoint struct {
	dbEntrypoint

	Stats engine.Stats
}

func NewCheckEntrypoint(configPath string, fs afero.Fs) *CheckEntrypoint {
	return &CheckEntrypoint{dbEntrypoint: dbEntrypoint{ConfigPath: configPath, Fs: fs}}
}

func (e *CheckEntrypoint) Init(context.Context) error {
	return e.init()
}

func (e *CheckEntrypoint) Run(ctx context.Context) error {
	if err := e.open(ctx); err != nil {
		return err
	}

	e.Stats = e.db.Stats()
	e.log.Infow("database is consistent",
		"path", e.cfg.DataPath,
		"pages", e.Stats.Pages,
		"free_pages", e.Stats.FreePages,
		"log_size", e.Stats.LogSize,
		"last_txn", e.Stats.LastTxnID,
	)

	return nil
}

// BenchEntrypoint opens the database and runs a concurrent workload on it.
type BenchEntrypoint struct {
	dbEntrypoint

	Report BenchReport
}

func NewBenchEntrypoint(configPath string, fs afero.Fs) *BenchEntrypoint {
	return &BenchEntrypoint{dbEntrypoint: dbEntrypoint{ConfigPath: configPath, Fs: fs}}
}

func (e *BenchEntrypoint) Init(context.Context) error {
	return e.init()
}

func (e *BenchEntrypoint) Run(ctx context.Context) error {
	if err := e.open(ctx); err != nil {
		return err
	}

	report, err := RunBench(ctx, e.db, e.cfg.BenchWorkers, e.cfg.BenchTxns, e.log)
	e.Report = report

	e.log.Infow("bench finished",
		"committed", report.Committed,
		"conflicts", report.Conflicts,
		"inserted", report.Inserted,
		"deleted", report.Deleted,
		"elapsed", report.Elapsed,
		"txn_per_sec", report.TxnsPerSecond(),
	)

	if err != nil {
		return fmt.Errorf("bench: %w", err)
	}

	return nil
}
