// Package main provides the entry point for the governd daemon: it loads the
// governor configuration and a task-definition file, then runs scheduling
// sessions once or on a cron schedule. Config changes are picked up between
// sessions via fsnotify.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/taskgov/governor/config"
	"github.com/taskgov/governor/contracts"
	"github.com/taskgov/governor/internal/budget"
	"github.com/taskgov/governor/internal/gates"
	"github.com/taskgov/governor/internal/sched"
	"github.com/taskgov/governor/internal/sensors"
	"github.com/taskgov/governor/internal/store"
	"github.com/taskgov/governor/internal/viability"
	"github.com/taskgov/governor/pkg/logx"
)

func main() {
	cfgPath := flag.String("config", "governor.yaml", "path to governor config (JSON or YAML)")
	tasksPath := flag.String("tasks", "tasks.json", "path to task definitions (JSON array)")
	resume := flag.Bool("resume", false, "re-enqueue tasks from the last session checkpoint first")
	flag.Parse()

	if err := run(*cfgPath, *tasksPath, *resume); err != nil {
		fmt.Fprintf(os.Stderr, "governd: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath, tasksPath string, resume bool) error {
	d := &daemon{cfgPath: cfgPath, tasksPath: tasksPath, resume: resume}

	cfg, err := config.NewLoader().LoadFromFile(cfgPath)
	if err != nil {
		return err
	}
	d.setConfig(cfg)

	if cfg.Logging.Console {
		d.log = logx.NewConsole(cfg.Logging.Level)
	} else {
		d.log = logx.NewJSON(os.Stderr, cfg.Logging.Level)
	}

	if cfg.Storage != nil {
		archive, err := store.Open(cfg.Storage.Path, d.log)
		if err != nil {
			return err
		}
		defer archive.Close()
		d.archive = archive
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stopWatch, err := d.watchConfig(ctx)
	if err != nil {
		d.log.Warn("config watch unavailable", logx.Err(err))
	} else {
		defer stopWatch()
	}

	if cfg.Session.Schedule == "" {
		return d.runSession(ctx)
	}

	// Recurring sessions. Overlap is impossible: the cron runner skips a
	// tick while the previous session still holds the session mutex.
	c := cron.New()
	_, err = c.AddFunc(cfg.Session.Schedule, func() {
		if err := d.runSession(ctx); err != nil {
			d.log.Error("session error", logx.Err(err))
		}
	})
	if err != nil {
		return fmt.Errorf("installing schedule: %w", err)
	}
	c.Start()
	d.log.Info("governd scheduled", logx.String("spec", cfg.Session.Schedule))

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	d.log.Info("governd stopped")
	return nil
}

type daemon struct {
	cfgPath   string
	tasksPath string
	resume    bool

	log     logx.Logger
	archive contracts.SessionArchive

	mu      sync.Mutex
	cfg     *config.Config
	running bool
}

func (d *daemon) setConfig(cfg *config.Config) {
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
}

func (d *daemon) currentConfig() *config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// runSession builds a fresh scheduler from the current config and runs one
// session over the task file. One session at a time.
func (d *daemon) runSession(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		d.log.Warn("session tick skipped: previous session still running")
		return nil
	}
	d.running = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	cfg := d.currentConfig()

	defs, err := loadTasks(d.tasksPath)
	if err != nil {
		return err
	}
	if d.resume {
		defs = reorderFromCheckpoint(cfg.Checkpoint.Dir, defs, d.log)
	}

	scheduler, err := sched.NewWithDefaults(
		sched.FactoryOptions{
			Thermal: gates.ThermalThresholds{
				Warm:      cfg.Thermal.WarmC,
				Hot:       cfg.Thermal.HotC,
				Critical:  cfg.Thermal.CriticalC,
				Emergency: cfg.Thermal.EmergencyC,
			},
			MemFloorGB: cfg.Memory.SafetyFloorGB,
			Ledger: budget.LedgerConfig{
				Budget:           contracts.Units(cfg.Budget.Units),
				SafetyMargin:     cfg.Budget.SafetyMargin,
				ReservedFraction: cfg.Budget.ReservedFraction,
				Window:           cfg.WindowDuration(),
			},
			Viability: viability.Config{
				FormatThreshold:  cfg.Viability.FormatThreshold,
				ProcessThreshold: cfg.Viability.ProcessThreshold,
				ShapeThreshold:   cfg.Viability.ShapeThreshold,
				QualityThreshold: cfg.Viability.QualityThreshold,
				RandomPicks:      cfg.Viability.RandomPicks,
			},
			Session: sched.Config{
				CheckpointThreshold: contracts.Units(cfg.Session.CheckpointThresholdUnits),
				EmergencyThreshold:  contracts.Units(cfg.Session.EmergencyThresholdUnits),
				CriticalFloor:       contracts.Units(cfg.Session.CriticalFloorUnits),
			},
			CheckpointDir: cfg.Checkpoint.Dir,
			Log:           d.log,
		},
		noopExecutor{},
		sensors.NewThermalReader(cfg.Thermal.SensorPath, 0),
		sensors.NewMemoryReader(cfg.Memory.MeminfoPath, 0),
	)
	if err != nil {
		return err
	}

	report, err := scheduler.RunSession(ctx, defs)
	if err != nil {
		return err
	}

	if d.archive != nil {
		if err := d.archive.AppendReport(ctx, report); err != nil {
			d.log.Error("archiving session report failed", logx.Err(err))
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// watchConfig reloads the config file on write events. A reload only affects
// the next session; in-flight sessions keep the config they started with.
func (d *daemon) watchConfig(ctx context.Context) (func(), error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(d.cfgPath)); err != nil {
		_ = w.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(d.cfgPath) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				// Editors fire bursts of events; debounce briefly.
				time.Sleep(100 * time.Millisecond)
				cfg, err := config.NewLoader().LoadFromFile(d.cfgPath)
				if err != nil {
					d.log.Warn("config reload rejected", logx.Err(err))
					continue
				}
				d.setConfig(cfg)
				d.log.Info("config reloaded", logx.String("path", d.cfgPath))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				d.log.Warn("config watcher error", logx.Err(err))
			}
		}
	}()
	return func() { _ = w.Close() }, nil
}

func loadTasks(path string) ([]*contracts.TaskDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tasks %s: %w", path, err)
	}
	var defs []*contracts.TaskDefinition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parsing tasks %s: %w", path, err)
	}
	return defs, nil
}

// reorderFromCheckpoint moves tasks named by the last session checkpoint to
// the front of the queue, in checkpoint order, so an interrupted session
// continues where it stopped.
func reorderFromCheckpoint(checkpointDir string, defs []*contracts.TaskDefinition, log logx.Logger) []*contracts.TaskDefinition {
	data, err := os.ReadFile(filepath.Join(checkpointDir, "session.json"))
	if err != nil {
		return defs
	}
	var cp contracts.SessionCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		log.Warn("session checkpoint unreadable, ignoring", logx.Err(err))
		return defs
	}

	byID := make(map[contracts.TaskID]*contracts.TaskDefinition, len(defs))
	for _, def := range defs {
		byID[def.ID] = def
	}

	ordered := make([]*contracts.TaskDefinition, 0, len(defs))
	seen := make(map[contracts.TaskID]bool, len(cp.Pending))
	for _, id := range cp.Pending {
		if def, ok := byID[id]; ok {
			ordered = append(ordered, def)
			seen[id] = true
		}
	}
	for _, def := range defs {
		if !seen[def.ID] {
			ordered = append(ordered, def)
		}
	}
	log.Info("resuming from session checkpoint",
		logx.String("stop_reason", string(cp.StopReason)),
		logx.Int("pending", len(cp.Pending)))
	return ordered
}

// noopExecutor is a placeholder executor: real deployments wire their own
// Executor implementation per subsystem.
type noopExecutor struct{}

func (noopExecutor) Execute(ctx context.Context, task *contracts.TaskDefinition, params contracts.AdaptationParams) (*contracts.ExecResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}
	return &contracts.ExecResult{ActualUnits: task.Estimate.Units}, nil
}

func (noopExecutor) ExecuteChunk(ctx context.Context, task *contracts.TaskDefinition, chunk contracts.ChunkID, params contracts.AdaptationParams) (*contracts.ChunkResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}
	payload, _ := json.Marshal(map[string]string{"chunk": string(chunk)})
	return &contracts.ChunkResult{Payload: payload}, nil
}

func (noopExecutor) Trial(ctx context.Context, task *contracts.TaskDefinition, index int) (contracts.TrialOutcome, error) {
	return contracts.TrialOutcome{FormatValid: true, Processed: true, OutputShape: true}, nil
}
