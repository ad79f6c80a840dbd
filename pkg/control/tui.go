package control

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harunnryd/roundtable/pkg/turn"
)

// Slot names one agent in the status view.
type Slot struct {
	ID    string
	Label string
}

type statusMsg struct {
	participant string
	state       turn.State
	reason      string
}

type quitMsg struct{}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#01cdfe"))
	labelStyle  = lipgloss.NewStyle().Width(14)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3d8"))
	pausedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff71ce"))
	stateStyles = map[turn.State]lipgloss.Style{
		turn.StateIdle:       lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3d8")),
		turn.StateActivated:  lipgloss.NewStyle().Foreground(lipgloss.Color("#fffb96")),
		turn.StateGenerating: lipgloss.NewStyle().Foreground(lipgloss.Color("#b967ff")),
		turn.StateSpeaking:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#05ffa1")),
		turn.StateTerminated: lipgloss.NewStyle().Strikethrough(true).Foreground(lipgloss.Color("#ff71ce")),
	}
)

// TUI is the keyboard control surface. Key presses become Events on the
// queue; participant state changes are rendered as a status board.
type TUI struct {
	program  *tea.Program
	statusCh chan statusMsg
}

func NewTUI(q *Queue, keys KeyMap, slots []Slot, opts ...tea.ProgramOption) *TUI {
	statusCh := make(chan statusMsg, 64)
	m := newModel(q, keys, slots, statusCh)
	return &TUI{
		program:  tea.NewProgram(m, opts...),
		statusCh: statusCh,
	}
}

// OnStateChange feeds the status board; it never blocks the caller.
func (t *TUI) OnStateChange(ev turn.StateChange) {
	select {
	case t.statusCh <- statusMsg{participant: ev.Participant, state: ev.ToState, reason: ev.Reason}:
	default:
	}
}

// Run owns the terminal until ctx is done.
func (t *TUI) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		t.program.Send(quitMsg{})
	}()
	_, err := t.program.Run()
	return err
}

type model struct {
	q        *Queue
	keys     KeyMap
	slots    []Slot
	states   map[string]turn.State
	reasons  map[string]string
	paused   bool
	last     string
	statusCh <-chan statusMsg
}

func newModel(q *Queue, keys KeyMap, slots []Slot, statusCh <-chan statusMsg) model {
	states := make(map[string]turn.State, len(slots))
	for _, s := range slots {
		states[s.ID] = turn.StateIdle
	}
	return model{
		q:        q,
		keys:     keys,
		slots:    slots,
		states:   states,
		reasons:  make(map[string]string),
		statusCh: statusCh,
	}
}

func waitStatus(ch <-chan statusMsg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func (m model) Init() tea.Cmd {
	return waitStatus(m.statusCh)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case quitMsg:
		return m, tea.Quit
	case statusMsg:
		m.states[msg.participant] = msg.state
		m.reasons[msg.participant] = msg.reason
		return m, waitStatus(m.statusCh)
	case tea.KeyMsg:
		ev, ok := m.keys[msg.String()]
		if !ok {
			return m, nil
		}
		if ev.Kind == KindPause {
			m.paused = !m.paused
		}
		if ev.Kind == KindActivate {
			m.paused = false
		}
		if m.q.Push(ev) {
			m.last = fmt.Sprintf("%s  %s", time.Now().Format("15:04:05"), ev.String())
		} else {
			m.last = "queue full, dropped " + ev.String()
		}
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("roundtable"))
	if m.paused {
		b.WriteString("  " + pausedStyle.Render("PAUSED"))
	}
	b.WriteString("\n\n")
	for i, s := range m.slots {
		state := m.states[s.ID]
		style, ok := stateStyles[state]
		if !ok {
			style = mutedStyle
		}
		line := fmt.Sprintf("%d %s %s", i+1, labelStyle.Render(s.Label), style.Render(state.String()))
		if r := m.reasons[s.ID]; r != "" {
			line += "  " + mutedStyle.Render(r)
		}
		b.WriteString(line + "\n")
	}
	if m.last != "" {
		b.WriteString("\n" + mutedStyle.Render("last: "+m.last) + "\n")
	}
	b.WriteString("\n" + mutedStyle.Render(m.help()) + "\n")
	return b.String()
}

func (m model) help() string {
	byKind := make(map[Kind][]string)
	for key, ev := range m.keys {
		if ev.Kind == KindActivate || ev.Kind == KindTerminate {
			continue
		}
		byKind[ev.Kind] = append(byKind[ev.Kind], key)
	}
	parts := make([]string, 0, len(byKind)+1)
	for kind, keys := range byKind {
		sort.Strings(keys)
		parts = append(parts, strings.Join(keys, "/")+" "+string(kind))
	}
	sort.Strings(parts)
	return "1-9 activate · " + strings.Join(parts, " · ")
}
