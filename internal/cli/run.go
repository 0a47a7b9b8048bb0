package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/plcsim/internal/config"
	"github.com/roach88/plcsim/internal/engine"
	"github.com/roach88/plcsim/internal/logging"
	"github.com/roach88/plcsim/internal/override"
	"github.com/roach88/plcsim/internal/program"
	"github.com/roach88/plcsim/internal/store"
)

// Fault filter names accepted by --filter.
var filterNames = map[string]func() engine.SeverityFilter{
	"all":            engine.AllPoints,
	"digital-inputs": engine.DigitalInputsOnly,
	"critical":       engine.CriticalOnly,
	"classic":        engine.ClassicPool,
}

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database      string
	ScanTime      time.Duration
	FaultInterval time.Duration
	HistoryLimit  int
	AutoFaults    bool
	Filter        string
	Duration      time.Duration
	ResetOnStop   bool
	LogFile       string
	LogJournal    bool
	Force         []string // TAG=VALUE overrides applied before start
	Faults        []string // tags faulted before start
	Resume        string   // journaled session to continue

	// SessionIDs allows overriding the session ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	SessionIDs engine.SessionIDGenerator
}

// RunSummary is printed when the engine stops.
type RunSummary struct {
	SessionID       string `json:"session_id"`
	Program         string `json:"program"`
	Scans           int64  `json:"scans"`
	ActiveRungs     int    `json:"active_rungs"`
	FaultCount      int    `json:"fault_count"`
	FaultEvents     int    `json:"fault_events"`
	Forced          int    `json:"forced"`
	JournalFailures int64  `json:"journal_failures"`
	Resumed         bool   `json:"resumed,omitempty"`

	Rungs []RungView `json:"rungs"`
}

// RungView is a rung's state when the engine stopped.
type RungView struct {
	Name     string `json:"name"`
	Output   string `json:"output"`
	Active   bool   `json:"active"`
	Contacts []bool `json:"contacts"`
	Broken   bool   `json:"broken,omitempty"`
}

func (s RunSummary) String() string {
	return fmt.Sprintf("session %s (%s): %d scans, %d active rungs, %d faulted points, %d fault events, %d forced",
		s.SessionID, s.Program, s.Scans, s.ActiveRungs, s.FaultCount, s.FaultEvents, s.Forced)
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [program.cue]",
		Short: "Run the scan engine",
		Long: `Start the scan engine on a ladder program (default: the built-in tank
training rig) and journal status and fault events to SQLite.

The engine runs until interrupted or until --duration elapses. Flags
override the PLCSIM_* environment and .env values.

Example:
  plcsim run --auto-faults --filter critical
  plcsim run --db /tmp/class.db --force DI_3=true --force DI_2=true programs/training_rig.cue
  plcsim run --duration 30s --fault DI_1
  plcsim run --resume 0199c3a2-7b1e-7c4d-9a55-2f0e8d1b6c40`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runEngine(opts, path, cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Database, "db", "", "path to SQLite journal (default $PLCSIM_DB or plcsim.db)")
	f.DurationVar(&opts.ScanTime, "scan-time", 0, "scan period (default $PLCSIM_SCAN_TIME or 10ms)")
	f.DurationVar(&opts.FaultInterval, "fault-interval", 0, "auto fault injection period (default $PLCSIM_FAULT_INTERVAL or 30s)")
	f.IntVar(&opts.HistoryLimit, "history-limit", 0, "fault history entries kept in memory (default $PLCSIM_HISTORY_LIMIT or 100)")
	f.BoolVar(&opts.AutoFaults, "auto-faults", false, "toggle a random point's fault flag every fault interval")
	f.StringVar(&opts.Filter, "filter", "classic", "auto fault candidates (all|digital-inputs|critical|classic)")
	f.DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	f.BoolVar(&opts.ResetOnStop, "reset-on-stop", false, "clear latched outputs when the engine stops")
	f.StringVar(&opts.LogFile, "log-file", "", "also write JSON logs to this file")
	f.BoolVar(&opts.LogJournal, "log-journal", false, "also write logs to the systemd journal")
	f.StringArrayVar(&opts.Force, "force", nil, "force a point before start, TAG=VALUE (repeatable)")
	f.StringArrayVar(&opts.Faults, "fault", nil, "fault a point before start (repeatable)")
	f.StringVar(&opts.Resume, "resume", "", "continue journaling into an existing session")

	return cmd
}

// resolveConfig merges environment configuration with explicitly set flags.
func resolveConfig(opts *RunOptions, cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(opts.EnvFile...)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DB = opts.Database
	}
	if flags.Changed("scan-time") {
		if opts.ScanTime <= 0 {
			return nil, fmt.Errorf("--scan-time %v: %w", opts.ScanTime, engine.ErrInvalidPeriod)
		}
		cfg.ScanTime = opts.ScanTime
	}
	if flags.Changed("fault-interval") {
		if opts.FaultInterval <= 0 {
			return nil, fmt.Errorf("--fault-interval %v: %w", opts.FaultInterval, engine.ErrInvalidPeriod)
		}
		cfg.FaultInterval = opts.FaultInterval
	}
	if flags.Changed("history-limit") {
		if opts.HistoryLimit <= 0 {
			return nil, fmt.Errorf("--history-limit must be positive, got %d", opts.HistoryLimit)
		}
		cfg.HistoryLimit = opts.HistoryLimit
	}
	if flags.Changed("log-file") {
		cfg.Logging.File = opts.LogFile
	}
	if flags.Changed("log-journal") {
		cfg.Logging.Journal = opts.LogJournal
	}
	if opts.Verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func parseFilter(name string) (engine.SeverityFilter, error) {
	mk, ok := filterNames[name]
	if !ok {
		return engine.SeverityFilter{}, fmt.Errorf("unknown fault filter %q (want all, digital-inputs, critical or classic)", name)
	}
	return mk(), nil
}

// parseForce splits TAG=VALUE. "true" and "false" are digital values;
// anything else must parse as a number.
func parseForce(s string) (string, any, error) {
	tag, raw, ok := strings.Cut(s, "=")
	tag = strings.TrimSpace(tag)
	if !ok || tag == "" {
		return "", nil, fmt.Errorf("invalid --force %q: want TAG=VALUE", s)
	}
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "true":
		return tag, true, nil
	case "false":
		return tag, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return "", nil, fmt.Errorf("invalid --force %q: value must be a bool or a number", s)
	}
	return tag, v, nil
}

func runEngine(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := resolveConfig(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	filter, err := parseFilter(opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	logger, closeLog, err := logging.New(logging.Options{
		Level:   level,
		Stderr:  cmd.ErrOrStderr(),
		File:    cfg.Logging.File,
		Journal: cfg.Logging.Journal,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up logging", err)
	}
	defer func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error closing log file: %v\n", err)
		}
	}()

	prog := program.Default()
	if path != "" {
		logger.Info("loading program", "path", path)
		if prog, err = program.Load(path); err != nil {
			return WrapExitError(ExitCommandError, "failed to load program", err)
		}
	}
	problems, err := prog.Check()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid program", err)
	}
	logger.Info("program loaded",
		"program", prog.Name,
		"points", len(prog.Points),
		"rungs", len(prog.Rungs),
		"problems", len(problems),
	)
	tbl, err := prog.NewTable()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid program", err)
	}

	logger.Info("opening journal", "path", cfg.DB)
	st, err := store.Open(cfg.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing journal", "error", closeErr)
		}
	}()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	var (
		sessionID string
		clock     *engine.Clock
	)
	if opts.Resume != "" {
		sessionID = opts.Resume
		if clock, err = resumeClock(ctx, st, sessionID, prog.Name); err != nil {
			return err
		}
		logger.Info("resuming session", "session_id", sessionID, "last_seq", clock.Current())
	} else {
		ids := opts.SessionIDs
		if ids == nil {
			ids = engine.UUIDv7Generator{}
		}
		sessionID = ids.Generate()
		clock = engine.NewClock()
	}

	if err := st.WriteSession(ctx, store.Session{
		ID:        sessionID,
		Program:   prog.Name,
		StartedAt: time.Now().UTC(),
		ScanTime:  cfg.ScanTime,
	}); err != nil {
		return WrapExitError(ExitCommandError, "failed to record session", err)
	}
	journal := store.NewJournal(st, sessionID, logger)

	eng, err := engine.New(tbl, prog.CopyRungs(),
		engine.WithScanTime(cfg.ScanTime),
		engine.WithHistoryLimit(cfg.HistoryLimit),
		engine.WithLogger(logger),
		engine.WithObserver(journal),
		engine.WithSessionIDGenerator(engine.NewFixedGenerator(sessionID)),
		engine.WithClock(clock),
		engine.WithResetOnStop(opts.ResetOnStop),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create engine", err)
	}
	defer eng.Close()

	panel := override.NewPanel(eng, override.WithLogger(logger))
	if err := applyOverrides(panel, opts); err != nil {
		return WrapExitError(ExitCommandError, "invalid override", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	eng.Start()
	if opts.AutoFaults {
		if err := eng.StartAutoInjection(cfg.FaultInterval, filter); err != nil {
			return WrapExitError(ExitCommandError, "failed to start fault injection", err)
		}
	}
	if banner := panel.Banner(); banner != "" {
		logger.Warn(banner)
	}

	var timeout <-chan time.Time
	if opts.Duration > 0 {
		timer := time.NewTimer(opts.Duration)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ctx.Done():
	case <-timeout:
		logger.Info("run duration elapsed", "duration", opts.Duration)
	}

	eng.Close()

	summary := RunSummary{
		SessionID:       sessionID,
		Program:         prog.Name,
		Scans:           eng.ScanCount(),
		ActiveRungs:     eng.ActiveRungs(),
		FaultCount:      eng.FaultCount(),
		FaultEvents:     eng.FaultEventsTotal(),
		Forced:          panel.ForcedCount(),
		JournalFailures: journal.Failures(),
		Resumed:         opts.Resume != "",
	}
	for _, rs := range eng.Rungs() {
		summary.Rungs = append(summary.Rungs, RungView{
			Name:     rs.Rung.Name,
			Output:   rs.Rung.Output,
			Active:   rs.Active,
			Contacts: rs.Contacts,
			Broken:   rs.Broken,
		})
	}
	logger.Debug("run finished", slog.Any("summary", summary))
	return formatter.Success(summary)
}

// resumeClock checks that a journaled session exists for the same program
// and returns a clock positioned after its last event.
func resumeClock(ctx context.Context, st *store.Store, id, programName string) (*engine.Clock, error) {
	sess, err := st.ReadSession(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("session %s not found", id))
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read session", err)
	}
	if sess.Program != programName {
		return nil, NewExitError(ExitCommandError,
			fmt.Sprintf("session %s was recorded with program %q, not %q", id, sess.Program, programName))
	}
	last, err := st.LastSeq(ctx, id)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read session", err)
	}
	return engine.NewClockAt(last), nil
}

func applyOverrides(panel *override.Panel, opts *RunOptions) error {
	for _, f := range opts.Force {
		tag, value, err := parseForce(f)
		if err != nil {
			return err
		}
		if err := panel.Force(tag, value); err != nil {
			return err
		}
	}
	for _, tag := range opts.Faults {
		if err := panel.SetFault(tag, true); err != nil {
			return err
		}
	}
	return nil
}
