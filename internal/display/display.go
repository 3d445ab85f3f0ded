// Package display provides the terminal status dashboard using Bubble Tea:
// a live engine-status bar, an amber activity meter driven by capture RMS,
// and a scrollback of finalized transcript text with the current partial
// trailing underneath it, grayed out until it resolves.
package display

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hammamikhairi/dictum/internal/domain"
)

const maxScrollback = 200

var (
	barBg = lipgloss.NewStyle().
		Background(lipgloss.Color("#27272a")).
		Foreground(lipgloss.Color("#a1a1aa"))

	statusListening = lipgloss.NewStyle().Foreground(lipgloss.Color("#86efac")).Bold(true)
	statusWarming   = lipgloss.NewStyle().Foreground(lipgloss.Color("#fde68a")).Bold(true)
	statusIdle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#a1a1aa"))
	statusError     = lipgloss.NewStyle().Foreground(lipgloss.Color("#fca5a5")).Bold(true)

	finalStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#e4e4e7"))
	partialStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#71717a")).Italic(true)
	deviceStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#94a3b8"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#52525b"))

	actBarHi  = lipgloss.NewStyle().Foreground(lipgloss.Color("#fde68a"))
	actBarMid = lipgloss.NewStyle().Foreground(lipgloss.Color("#b8943d"))
	actBarLo  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7a6228"))
	actBarDim = lipgloss.NewStyle().Foreground(lipgloss.Color("#3f3f46"))
)

// UI is the dashboard's handle: it implements domain.Subscriber so the
// engine can be wired to it directly via Controller.Subscribe.
type UI struct {
	program *tea.Program
	device  string

	readyCh chan struct{}
	quitCh  chan struct{}
	closed  bool
}

// NewUI constructs a dashboard for the given (already resolved) capture
// device name, shown in the top bar.
func NewUI(device string) *UI {
	return &UI{
		device:  device,
		readyCh: make(chan struct{}),
		quitCh:  make(chan struct{}),
	}
}

// Notify implements domain.Subscriber. It must not block — program.Send
// queues onto Bubble Tea's own internal channel and returns immediately.
func (u *UI) Notify(ev domain.Event) {
	if u.program != nil {
		u.program.Send(eventMsg{ev})
	}
}

// Closed implements domain.Subscriber.
func (u *UI) Closed() bool { return u.closed }

// WaitReady blocks until the first frame has rendered.
func (u *UI) WaitReady() { <-u.readyCh }

// QuitChan signals when the user has quit the dashboard (ctrl+c/q).
func (u *UI) QuitChan() <-chan struct{} { return u.quitCh }

// Run starts the Bubble Tea program and blocks until it exits.
func (u *UI) Run() error {
	m := model{device: u.device, readyCh: u.readyCh}
	u.program = tea.NewProgram(m, tea.WithAltScreen())
	_, err := u.program.Run()
	u.closed = true
	close(u.quitCh)
	return err
}

// Quit requests the dashboard stop.
func (u *UI) Quit() {
	if u.program != nil {
		u.program.Quit()
	}
}

type model struct {
	device  string
	readyCh chan struct{}

	status domain.EngineStatusKind
	detail string

	finals      []string
	lastPartial string

	activityLevel float32 // smoothed [0,1]
	barFrame      int

	width, height int
}

type eventMsg struct{ ev domain.Event }
type tickMsg time.Time

func signalReady(ch chan struct{}) tea.Cmd {
	return func() tea.Msg {
		close(ch)
		return nil
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(40*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), signalReady(m.readyCh))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
		return m, nil

	case tickMsg:
		m.barFrame++
		return m, tickCmd()

	case eventMsg:
		m.applyEvent(msg.ev)
		return m, nil
	}
	return m, nil
}

func (m *model) applyEvent(ev domain.Event) {
	switch ev.Kind {
	case domain.EventStatus:
		m.status = ev.Status.Status
		m.detail = ev.Status.Detail

	case domain.EventActivity:
		target := float32(0)
		if ev.Activity.IsSpeech {
			target = clamp01(ev.Activity.RMS * 6)
		}
		// Exponential smoothing so the meter doesn't flicker frame to frame.
		m.activityLevel = m.activityLevel*0.7 + target*0.3

	case domain.EventTranscript:
		for _, seg := range ev.Transcript.Segments {
			if seg.Kind == domain.SegmentPartial {
				m.lastPartial = seg.Text
				continue
			}
			m.lastPartial = ""
			m.finals = append(m.finals, seg.Text)
			if len(m.finals) > maxScrollback {
				m.finals = m.finals[len(m.finals)-maxScrollback:]
			}
		}
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (m model) statusStr() string {
	switch m.status {
	case domain.StatusListening:
		return statusListening.Render("● listening")
	case domain.StatusWarmingUp:
		return statusWarming.Render("◐ warming up")
	case domain.StatusError:
		s := statusError.Render("✕ error")
		if m.detail != "" {
			s += " " + hintStyle.Render(m.detail)
		}
		return s
	case domain.StatusStopped:
		return statusIdle.Render("○ stopped")
	default:
		return statusIdle.Render("○ idle")
	}
}

// activityBar renders a fixed-width meter whose lit portion tracks
// activityLevel, with a traveling glow when actively speaking — adapted
// from the teacher's timer crossing-bar animation.
func (m model) activityBar(width int) string {
	if width <= 0 {
		width = 30
	}
	lit := int(math.Round(float64(m.activityLevel) * float64(width)))
	var b strings.Builder
	for x := 0; x < width; x++ {
		if x >= lit {
			b.WriteString(actBarDim.Render("╌"))
			continue
		}
		glow := math.Mod(float64(m.barFrame)*0.6, float64(width))
		dist := math.Abs(float64(x) - glow)
		switch {
		case dist < 2:
			b.WriteString(actBarHi.Render("━"))
		case dist < 5:
			b.WriteString(actBarMid.Render("━"))
		default:
			b.WriteString(actBarLo.Render("━"))
		}
	}
	return b.String()
}

func (m model) View() string {
	width := m.width
	if width <= 0 {
		width = 80
	}

	top := barBg.Width(width).Render(fmt.Sprintf(" dictum  %s  %s", m.statusStr(), deviceStyle.Render(m.device)))

	var body strings.Builder
	body.WriteString(top)
	body.WriteString("\n\n")

	visible := m.height - 6
	if visible < 3 {
		visible = 3
	}
	finals := m.finals
	if len(finals) > visible {
		finals = finals[len(finals)-visible:]
	}
	for _, f := range finals {
		body.WriteString(finalStyle.Render(f))
		body.WriteString("\n")
	}
	if m.lastPartial != "" {
		body.WriteString(partialStyle.Render(m.lastPartial))
		body.WriteString("\n")
	}

	body.WriteString("\n")
	body.WriteString(m.activityBar(width - 2))
	body.WriteString("\n")
	body.WriteString(hintStyle.Render("ctrl+c / q to quit"))

	return body.String()
}
