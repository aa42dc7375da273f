package console

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"droneops-console/internal/channel"
	"droneops-console/internal/command"
	"droneops-console/internal/fleet"
	"droneops-console/internal/viewmodel"
)

// Controller performs the console's side effects.
type Controller interface {
	Dispatch(ctx context.Context, missionID string, a fleet.Action, reason string) (fleet.Mission, error)
	Refresh(ctx context.Context) error
}

// stateMsg carries a new view-model snapshot.
type stateMsg struct{ viewmodel.State }

// channelMsg reports an event channel state change.
type channelMsg struct {
	state channel.State
	err   error
}

// noticeMsg carries a failed command notification.
type noticeMsg struct{ command.Notice }

// doneMsg reports a finished command.
type doneMsg struct {
	missionID string
	action    fleet.Action
	mission   fleet.Mission
	err       error
}

type refreshedMsg struct{ err error }

const (
	maxLogLines    = 200
	maxHistoryRows = 5
	maxAlertRows   = 3
	commandTimeout = 15 * time.Second
)

var (
	dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	title    = lipgloss.NewStyle().Bold(true)
	on       = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("●")
	off      = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("●")
	pending  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Render("●")
	warnText = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errText  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

var statusStyles = map[fleet.MissionStatus]lipgloss.Style{
	fleet.MissionScheduled:  lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
	fleet.MissionInProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	fleet.MissionPaused:     lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	fleet.MissionCompleted:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	fleet.MissionAborted:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
}

type model struct {
	ctl Controller
	now func() time.Time

	state   viewmodel.State
	channel channel.State
	chanErr error

	missions table.Model
	drones   table.Model
	vp       viewport.Model
	logs     []string

	reason      textinput.Model
	abortDialog bool
	abortID     string

	focusDrones bool
	wrap        bool
	help        bool
	width       int
	height      int
}

func newModel(ctl Controller, now func() time.Time) model {
	if now == nil {
		now = time.Now
	}
	missions := table.New(table.WithColumns([]table.Column{
		{Title: "Mission", Width: 10},
		{Title: "Name", Width: 26},
		{Title: "Status", Width: 24},
		{Title: "Progress", Width: 8},
		{Title: "ETA", Width: 8},
		{Title: "Drone", Width: 10},
	}), table.WithFocused(true), table.WithHeight(6))
	drones := table.New(table.WithColumns([]table.Column{
		{Title: "Drone", Width: 10},
		{Title: "Name", Width: 16},
		{Title: "Status", Width: 12},
		{Title: "Battery", Width: 8},
		{Title: "Position", Width: 24},
	}), table.WithHeight(5))
	return model{
		ctl:      ctl,
		now:      now,
		state:    viewmodel.NewState(0, 0),
		missions: missions,
		drones:   drones,
		vp:       viewport.New(0, 0),
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.missions.SetWidth(msg.Width)
		m.drones.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.resize()
		m.refreshLog()
	case stateMsg:
		// Older than what is shown: a newer update overtook it.
		if msg.Version <= m.state.Version {
			break
		}
		m.state = msg.State
		m.refreshTables()
	case channelMsg:
		if msg.state != m.channel || msg.err != nil {
			line := "channel " + msg.state.String()
			if msg.err != nil {
				line += ": " + msg.err.Error()
			}
			m.appendLog(line)
		}
		m.channel, m.chanErr = msg.state, msg.err
	case noticeMsg:
		m.appendLog(errText.Render(msg.Notice.String()))
	case doneMsg:
		if msg.err == nil {
			m.appendLog(fmt.Sprintf("%s %s: %s", msg.action, msg.missionID, msg.mission.Status))
		}
	case refreshedMsg:
		if msg.err != nil {
			m.appendLog(errText.Render("refresh failed: " + msg.err.Error()))
		} else {
			m.appendLog("snapshot reloaded")
		}
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.abortDialog {
		switch msg.Type {
		case tea.KeyEnter:
			reason := strings.TrimSpace(m.reason.Value())
			m.abortDialog = false
			m.resize()
			if reason == "" {
				m.appendLog(warnText.Render("abort cancelled: a reason is required"))
				return m, nil
			}
			return m, m.dispatch(m.abortID, fleet.ActionAbort, reason)
		case tea.KeyEsc:
			m.abortDialog = false
			m.resize()
			return m, nil
		default:
			var cmd tea.Cmd
			m.reason, cmd = m.reason.Update(msg)
			return m, cmd
		}
	}
	if m.help {
		switch msg.String() {
		case "?", "h", "esc", "q":
			m.help = false
		}
		return m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "?", "h":
		m.help = true
		return m, nil
	case "tab":
		m.focusDrones = !m.focusDrones
		if m.focusDrones {
			m.missions.Blur()
			m.drones.Focus()
		} else {
			m.drones.Blur()
			m.missions.Focus()
		}
		return m, nil
	case "w":
		m.wrap = !m.wrap
		m.refreshLog()
		return m, nil
	case "f":
		return m, m.refresh()
	case "s":
		return m.command(fleet.ActionStart)
	case "p":
		return m.command(fleet.ActionPause)
	case "r":
		return m.command(fleet.ActionResume)
	case "c":
		return m.command(fleet.ActionComplete)
	case "a":
		return m.command(fleet.ActionAbort)
	}

	var cmd tea.Cmd
	if m.focusDrones {
		m.drones, cmd = m.drones.Update(msg)
	} else {
		m.missions, cmd = m.missions.Update(msg)
	}
	return m, cmd
}

// command guards a to the selected mission's effective status before
// sending it, so illegal actions never leave the console.
func (m model) command(a fleet.Action) (tea.Model, tea.Cmd) {
	id := m.selectedMission()
	if id == "" {
		m.appendLog(warnText.Render("no mission selected"))
		return m, nil
	}
	status, busy, ok := viewmodel.EffectiveStatus(m.state, id)
	if !ok {
		return m, nil
	}
	if busy {
		m.appendLog(warnText.Render(fmt.Sprintf("%s: a command is still in flight", id)))
		return m, nil
	}
	if !fleet.CanApply(status, a) {
		m.appendLog(warnText.Render(fmt.Sprintf("cannot %s %s while %s", a, id, status)))
		return m, nil
	}
	if a == fleet.ActionAbort {
		m.reason = textinput.New()
		m.reason.Placeholder = "reason"
		m.reason.CharLimit = 500
		m.reason.Focus()
		m.abortDialog = true
		m.abortID = id
		m.resize()
		return m, textinput.Blink
	}
	return m, m.dispatch(id, a, "")
}

func (m model) dispatch(id string, a fleet.Action, reason string) tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		rec, err := ctl.Dispatch(ctx, id, a, reason)
		return doneMsg{missionID: id, action: a, mission: rec, err: err}
	}
}

func (m model) refresh() tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return refreshedMsg{err: ctl.Refresh(ctx)}
	}
}

func (m model) selectedMission() string {
	row := m.missions.SelectedRow()
	if len(row) == 0 {
		return ""
	}
	return row[0]
}

func (m *model) appendLog(line string) {
	stamp := dim.Render(m.now().Format("15:04:05"))
	m.logs = append(m.logs, stamp+" "+line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
	m.refreshLog()
}

func (m *model) refreshLog() {
	lines := m.logs
	if m.wrap && m.vp.Width > 0 {
		lines = make([]string, 0, len(m.logs))
		for _, l := range m.logs {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	m.vp.GotoBottom()
}

func (m *model) refreshTables() {
	var rows []table.Row
	for _, ms := range append(viewmodel.Active(m.state), viewmodel.Scheduled(m.state)...) {
		rows = append(rows, missionRow(m.state, ms))
	}
	m.missions.SetRows(rows)
	if c := m.missions.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.missions.SetCursor(len(rows) - 1)
	}

	var drows []table.Row
	for _, d := range viewmodel.Drones(m.state) {
		drows = append(drows, droneRow(d))
	}
	m.drones.SetRows(drows)
}

func missionRow(s viewmodel.State, ms fleet.Mission) table.Row {
	status, busy, _ := viewmodel.EffectiveStatus(s, ms.ID)
	label := string(ms.Status)
	if busy {
		label = fmt.Sprintf("%s -> %s", ms.Status, status)
	}
	eta := "-"
	if ms.Status.IsActive() && ms.Progress.EstimatedTimeRemaining > 0 {
		eta = (time.Duration(ms.Progress.EstimatedTimeRemaining) * time.Second).String()
	}
	drone := ms.DroneID()
	if ms.AssignedDrone != nil && ms.AssignedDrone.Name != "" {
		drone = ms.AssignedDrone.Name
	}
	return table.Row{ms.ID, ms.Name, label, fmt.Sprintf("%.0f%%", ms.Progress.PercentComplete), eta, drone}
}

func droneRow(d fleet.Drone) table.Row {
	pos := "-"
	if p := d.Telemetry.LastKnownPosition; p != nil {
		pos = fmt.Sprintf("%.5f,%.5f %.0fm", p.Latitude, p.Longitude, p.Altitude)
	}
	return table.Row{d.ID, d.Name, string(d.Status), fmt.Sprintf("%.0f%%", d.Telemetry.BatteryLevel), pos}
}

// resize gives the log viewport whatever the fixed sections leave over.
func (m *model) resize() {
	if m.height == 0 {
		return
	}
	used := lipgloss.Height(m.renderHeader()) + lipgloss.Height(m.missions.View()) +
		lipgloss.Height(m.drones.View()) + lipgloss.Height(m.renderHistory()) +
		lipgloss.Height(m.renderBottom()) + 8
	h := m.height - used
	if h < 3 {
		h = 3
	}
	m.vp.Height = h
}

func (m model) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := dim.Render(strings.Repeat("─", max(m.width, 1)))
	sections := []string{
		m.renderHeader(),
		divider,
		m.missions.View(),
		divider,
		title.Render("Drones"),
		m.drones.View(),
		divider,
		m.renderHistory(),
		divider,
		m.vp.View(),
	}
	if m.abortDialog {
		sections = append(sections, fmt.Sprintf("Abort %s - Enter to confirm, Esc to cancel: %s", m.abortID, m.reason.View()))
	}
	sections = append(sections, divider, m.renderBottom())
	return strings.Join(sections, "\n")
}

func (m model) renderHeader() string {
	st := viewmodel.ComputeStats(m.state)
	ind := off
	switch m.channel {
	case channel.Connected:
		ind = on
	case channel.Connecting, channel.Reconnecting:
		ind = pending
	}
	line := fmt.Sprintf("%s  channel %s %s | missions active=%d paused=%d scheduled=%d | drones %d (%d flying, %d available)",
		title.Render("DroneOps"), ind, m.channel,
		st.ActiveMissions, st.PausedMissions, st.ScheduledMissions,
		st.TotalDrones, st.ActiveDrones, st.AvailableDrones)
	alerts := m.state.Alerts
	if len(alerts) > maxAlertRows {
		alerts = alerts[len(alerts)-maxAlertRows:]
	}
	for _, a := range alerts {
		line += "\n" + warnText.Render(fmt.Sprintf("! %s %s %s", a.Time.Format("15:04:05"), a.DroneID, a.Message))
	}
	return line
}

func (m model) renderHistory() string {
	var b strings.Builder
	b.WriteString(title.Render("Recent"))
	hist := m.state.History
	if len(hist) > maxHistoryRows {
		hist = hist[:maxHistoryRows]
	}
	if len(hist) == 0 {
		b.WriteString("\n" + dim.Render("none"))
	}
	now := m.now()
	for _, h := range hist {
		st := statusStyles[h.Status].Render(string(h.Status))
		b.WriteString(fmt.Sprintf("\n%s %s %s %s", h.ID, h.Name, st, dim.Render(viewmodel.Ago(now, h.EndedAt()))))
	}
	return b.String()
}

func (m model) renderBottom() string {
	wrapInd := off
	if m.wrap {
		wrapInd = on
	}
	focus := "missions"
	if m.focusDrones {
		focus = "drones"
	}
	return fmt.Sprintf("s start  p pause  r resume  c complete  a abort  f refresh  tab %s  q quit | Wrap %s | Help ?", focus, wrapInd)
}

func (m model) renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" s  start the selected mission",
		" p  pause",
		" r  resume",
		" c  complete",
		" a  abort (asks for a reason)",
		" f  reload the snapshot",
		" tab switch between missions and drones",
		" j/k or up/down  move the selection",
		" w  toggle wrap for the log",
		" q  quit",
		" h/? toggle this help view",
	}
	return strings.Join(lines, "\n")
}
