package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"droneops-console/internal/channel"
	"droneops-console/internal/command"
	"droneops-console/internal/console"
	"droneops-console/internal/fleet"
	"droneops-console/internal/logging"
	"droneops-console/internal/recorder"
	"droneops-console/internal/session"
	"droneops-console/internal/viewmodel"
)

// sink is what the watch output needs from a renderer.
type sink interface {
	StateChanged(viewmodel.State)
	ChannelChanged(channel.State, error)
	Notify(command.Notice)
}

// controller lets the dashboard act on the session once its view is open.
type controller struct {
	sess *session.Session

	mu   sync.Mutex
	view *session.View
}

func (c *controller) setView(v *session.View) {
	c.mu.Lock()
	c.view = v
	c.mu.Unlock()
}

func (c *controller) Dispatch(ctx context.Context, missionID string, a fleet.Action, reason string) (fleet.Mission, error) {
	return c.sess.Dispatch(ctx, missionID, a, reason)
}

func (c *controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	v := c.view
	c.mu.Unlock()
	if v == nil {
		return session.ErrViewClosed
	}
	return v.Refresh(ctx)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		plain   bool
		logFile string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Monitor missions live",
		Long: "watch opens the mission view and follows registry events. On a terminal it runs an " +
			"interactive dashboard; otherwise it prints one line per change.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			useTUI := !plain && isTerminal(cmd.OutOrStdout())

			log := a.log
			if useTUI {
				// The dashboard owns the screen.
				log = logging.Discard()
				if logFile != "" {
					f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
					if err != nil {
						return err
					}
					defer f.Close()
					log = logging.NewWith(f, a.cfg.Log.Level, a.cfg.Log.Format)
				}
			}

			rec, err := recorder.Open(a.cfg.Recorder)
			if err != nil {
				return fmt.Errorf("open recorder: %w", err)
			}

			ctl := &controller{}
			var (
				out sink
				tui *console.TUI
			)
			if useTUI {
				tui = console.NewTUI(ctx, ctl)
				out = tui
			} else {
				out = console.NewPlain(cmd.OutOrStdout())
			}

			deps := session.Deps{
				Logger:    log,
				Notify:    out.Notify,
				OnChannel: out.ChannelChanged,
			}
			if rec != nil {
				deps.Recorder = rec
			}
			sess, err := a.session(deps)
			if err != nil {
				if rec != nil {
					rec.Close()
				}
				return err
			}
			defer sess.Close()
			ctl.sess = sess
			stop := sess.Store().OnChange(out.StateChanged)
			defer stop()

			if tui != nil {
				tui.Start()
			}
			fail := func(err error) error {
				if tui != nil {
					tui.Close()
				}
				return err
			}
			if err := sess.Resume(); err != nil {
				return fail(fmt.Errorf("not logged in, run fleetctl login: %w", err))
			}
			view, err := sess.OpenView(ctx)
			if err != nil {
				return fail(err)
			}
			ctl.setView(view)

			if tui != nil {
				return tui.Wait()
			}
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "Print line output even on a terminal")
	cmd.Flags().StringVar(&logFile, "log-file", "", "Write logs here while the dashboard runs")
	return cmd
}
