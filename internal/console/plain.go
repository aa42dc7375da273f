package console

import (
	"fmt"
	"io"
	"sync"
	"time"

	"droneops-console/internal/channel"
	"droneops-console/internal/command"
	"droneops-console/internal/fleet"
	"droneops-console/internal/viewmodel"
)

// Plain prints one line per observable change. It is safe for concurrent use.
type Plain struct {
	out io.Writer
	now func() time.Time

	mu        sync.Mutex
	statuses  map[string]fleet.MissionStatus
	progress  map[string]float64
	lastAlert time.Time
}

// NewPlain writes to out.
func NewPlain(out io.Writer) *Plain {
	return &Plain{
		out:      out,
		now:      time.Now,
		statuses: map[string]fleet.MissionStatus{},
		progress: map[string]float64{},
	}
}

func (p *Plain) printf(format string, args ...any) {
	fmt.Fprintf(p.out, "%s "+format+"\n", append([]any{p.now().UTC().Format(time.RFC3339)}, args...)...)
}

// StateChanged prints mission status and progress changes and new alerts.
func (p *Plain) StateChanged(s viewmodel.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[string]bool, len(s.Missions))
	for _, m := range append(viewmodel.Active(s), viewmodel.Scheduled(s)...) {
		seen[m.ID] = true
		status, busy, _ := viewmodel.EffectiveStatus(s, m.ID)
		if prev, ok := p.statuses[m.ID]; !ok || prev != status {
			suffix := ""
			if busy {
				suffix = " (pending)"
			}
			p.printf("mission=%s name=%q status=%s%s", m.ID, m.Name, status, suffix)
			p.statuses[m.ID] = status
		}
		if pct := m.Progress.PercentComplete; pct != p.progress[m.ID] {
			p.progress[m.ID] = pct
			if m.Status.IsActive() {
				p.printf("mission=%s progress=%.1f%% eta=%.0fs", m.ID, pct, m.Progress.EstimatedTimeRemaining)
			}
		}
	}
	for _, h := range s.History {
		if prev, ok := p.statuses[h.ID]; ok && prev != h.Status {
			p.printf("mission=%s name=%q status=%s", h.ID, h.Name, h.Status)
		}
		p.statuses[h.ID] = h.Status
		seen[h.ID] = true
	}
	for id := range p.statuses {
		if !seen[id] {
			delete(p.statuses, id)
			delete(p.progress, id)
		}
	}

	for _, a := range s.Alerts {
		if !a.Time.After(p.lastAlert) {
			continue
		}
		p.printf("ALERT drone=%s mission=%s severity=%s %s", a.DroneID, a.MissionID, a.Severity, a.Message)
		p.lastAlert = a.Time
	}
}

// ChannelChanged prints connection state changes.
func (p *Plain) ChannelChanged(s channel.State, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.printf("channel=%s err=%q", s, err.Error())
		return
	}
	p.printf("channel=%s", s)
}

// Notify prints failed commands.
func (p *Plain) Notify(n command.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printf("%s", n.String())
}
