package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/plcsim/internal/config"
	"github.com/roach88/plcsim/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Tag      string
}

// SessionView is a journaled session as printed by history.
type SessionView struct {
	ID        string    `json:"id"`
	Program   string    `json:"program"`
	StartedAt time.Time `json:"started_at"`
	ScanTime  string    `json:"scan_time"`
}

// FaultView is one journaled fault event.
type FaultView struct {
	Seq    int64     `json:"seq"`
	At     time.Time `json:"at"`
	Tag    string    `json:"tag"`
	Kind   string    `json:"kind"`
	Origin string    `json:"origin"`
	Fault  bool      `json:"fault"`
}

// StatusView is one journaled status transition.
type StatusView struct {
	Seq      int64     `json:"seq"`
	At       time.Time `json:"at"`
	Status   string    `json:"status"`
	Previous string    `json:"previous"`
	Faulted  []string  `json:"faulted,omitempty"`
}

// SessionHistory is the detail view of one session.
type SessionHistory struct {
	Session SessionView  `json:"session"`
	Status  []StatusView `json:"status"`
	Faults  []FaultView  `json:"faults"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "Show journaled sessions and fault history",
		Long: `List the sessions recorded in a journal, or show the status transitions
and fault events of one session.

Example:
  plcsim history
  plcsim history --db /tmp/class.db 0190b5c2-...
  plcsim history --tag DI_0 0190b5c2-...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runListSessions(opts, cmd)
			}
			return runShowSession(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (default $PLCSIM_DB or plcsim.db)")
	cmd.Flags().StringVar(&opts.Tag, "tag", "", "only show fault events for this tag")

	return cmd
}

// openJournal opens an existing journal read path. A missing file is a
// command error rather than an empty journal.
func openJournal(opts *HistoryOptions, cmd *cobra.Command) (*store.Store, error) {
	path := opts.Database
	if !cmd.Flags().Changed("db") {
		cfg, err := config.Load(opts.EnvFile...)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
		}
		path = cfg.DB
	}
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "journal not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	return st, nil
}

func runListSessions(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	st, err := openJournal(opts, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.ReadSessions(cmd.Context())
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read sessions", err)
	}

	views := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView(s))
	}
	if opts.Format == "json" {
		return formatter.Success(views)
	}

	w := formatter.Writer
	if len(views) == 0 {
		fmt.Fprintln(w, "No sessions recorded")
		return nil
	}
	for _, v := range views {
		fmt.Fprintf(w, "%s  %s  %-24s scan %s\n", v.ID, v.StartedAt.Format(time.RFC3339), v.Program, v.ScanTime)
	}
	return nil
}

func runShowSession(opts *HistoryOptions, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	st, err := openJournal(opts, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	sess, err := st.ReadSession(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("session %s not found", id), nil)
		return WrapExitError(ExitCommandError, "session not found", err)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	statuses, err := st.ReadStatusEvents(ctx, id)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read status events", err)
	}
	faults, err := st.ReadFaultEvents(ctx, id, opts.Tag)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read fault events", err)
	}

	h := SessionHistory{
		Session: sessionView(sess),
		Status:  make([]StatusView, 0, len(statuses)),
		Faults:  make([]FaultView, 0, len(faults)),
	}
	for _, r := range statuses {
		v := StatusView{Seq: r.Seq, At: r.At, Status: string(r.Status), Previous: string(r.Previous)}
		for _, p := range r.Points {
			if p.Fault {
				v.Faulted = append(v.Faulted, p.Tag)
			}
		}
		h.Status = append(h.Status, v)
	}
	for _, ev := range faults {
		h.Faults = append(h.Faults, FaultView{
			Seq:    ev.Seq,
			At:     ev.Timestamp,
			Tag:    ev.Tag,
			Kind:   ev.Kind.String(),
			Origin: string(ev.Origin),
			Fault:  ev.Fault,
		})
	}

	if opts.Format == "json" {
		return formatter.Success(h)
	}
	return outputHistoryText(formatter, h)
}

func outputHistoryText(f *OutputFormatter, h SessionHistory) error {
	w := f.Writer
	fmt.Fprintf(w, "Session %s\n", h.Session.ID)
	fmt.Fprintf(w, "  program:   %s\n", h.Session.Program)
	fmt.Fprintf(w, "  started:   %s\n", h.Session.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "  scan time: %s\n", h.Session.ScanTime)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Status transitions (%d)\n", len(h.Status))
	for _, s := range h.Status {
		fmt.Fprintf(w, "  #%-4d %s  %s -> %s", s.Seq, s.At.Format(time.RFC3339), s.Previous, s.Status)
		if len(s.Faulted) > 0 {
			fmt.Fprintf(w, "  faulted %v", s.Faulted)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Fault events (%d)\n", len(h.Faults))
	for _, ev := range h.Faults {
		state := "cleared"
		if ev.Fault {
			state = "FAULT"
		}
		fmt.Fprintf(w, "  #%-4d %s  %-6s %-7s %s\n", ev.Seq, ev.At.Format(time.RFC3339), ev.Tag, state, ev.Origin)
	}
	return nil
}

func sessionView(s store.Session) SessionView {
	return SessionView{
		ID:        s.ID,
		Program:   s.Program,
		StartedAt: s.StartedAt,
		ScanTime:  s.ScanTime.String(),
	}
}
