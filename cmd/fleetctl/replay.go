package main

import (
	"github.com/spf13/cobra"

	"droneops-console/internal/console"
	"droneops-console/internal/event"
	"droneops-console/internal/recorder"
	"droneops-console/internal/viewmodel"
)

// replayPlayer rebuilds the view from a recording.
type replayPlayer struct {
	store *viewmodel.Store
}

func (p replayPlayer) Snapshot(s recorder.Snapshot) {
	p.store.Update(viewmodel.ReplaceSnapshot(s.Missions, s.Drones, s.At))
}

func (p replayPlayer) Event(ev event.Event) {
	p.store.Update(viewmodel.ApplyEvent(ev, ev.Time))
}

func newReplayCmd(a *app) *cobra.Command {
	var (
		input string
		speed float64
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a recorded session",
		Long:  "replay feeds a JSONL recording through the mission view and prints the changes it produces.",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := viewmodel.NewStore(a.cfg.View.HistoryLimit, a.cfg.View.AlertLimit)
			out := console.NewPlain(cmd.OutOrStdout())
			stop := store.OnChange(out.StateChanged)
			defer stop()
			return recorder.ReplayFile(cmd.Context(), input, replayPlayer{store: store}, speed)
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "Path to the recording (JSONL)")
	cmd.Flags().Float64Var(&speed, "speed", 1.0, "Playback speed multiplier; 0 replays without delay")
	cmd.MarkFlagRequired("input")
	return cmd
}
