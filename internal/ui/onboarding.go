package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ProfileDecision is what the init card hands back: leave everything as is,
// stop feeding machine context into prompts, or attach a correction note to
// the captured profile.
type ProfileDecision struct {
	DisableContext bool
	SetUserNote    bool
	UserNote       string
}

type initCardMode int

const (
	initCardMenu initCardMode = iota
	initCardEditNote
)

const initCardSummaryBudget = 14

type initCardModel struct {
	summaryLines []string
	noteInput    textinput.Model
	mode         initCardMode
	decision     ProfileDecision
	done         bool
	tick         int
}

type initCardTickMsg struct{}

// ProfileOnboarding shows the freshly captured machine profile during
// wut init and collects the user's verdict on it. handled=false means no
// interactive backend could render; the caller keeps the defaults.
func ProfileOnboarding(backend string, summary string, currentNote string) (ProfileDecision, bool, error) {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return ProfileDecision{}, false, nil
	}

	// Only the bubbletea backend renders the card; there is no tview or
	// huh layout for it.
	for _, candidate := range backendCandidates(backend) {
		if candidate != BackendBubbleTea {
			continue
		}
		final, err := tea.NewProgram(newInitCardModel(summary, currentNote), tea.WithAltScreen()).Run()
		if err != nil {
			return ProfileDecision{}, false, err
		}
		card, ok := final.(initCardModel)
		if !ok {
			return ProfileDecision{}, true, nil
		}
		return card.decision, true, nil
	}
	return ProfileDecision{}, false, nil
}

func newInitCardModel(summary string, currentNote string) initCardModel {
	input := textinput.New()
	input.Placeholder = "optional correction note"
	input.CharLimit = 240
	input.Width = 72
	input.SetValue(strings.TrimSpace(currentNote))

	return initCardModel{
		summaryLines: summarizeProfileLines(summary, initCardSummaryBudget),
		noteInput:    input,
		mode:         initCardMenu,
	}
}

func (m initCardModel) Init() tea.Cmd {
	return initCardTickCmd()
}

func (m initCardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if _, ok := msg.(initCardTickMsg); ok {
		if m.done {
			return m, nil
		}
		m.tick++
		return m, initCardTickCmd()
	}

	key, isKey := msg.(tea.KeyMsg)
	if m.mode == initCardEditNote {
		if isKey {
			return m.handleNoteKey(key)
		}
		var cmd tea.Cmd
		m.noteInput, cmd = m.noteInput.Update(msg)
		return m, cmd
	}
	if isKey {
		return m.handleMenuKey(key)
	}
	return m, nil
}

// quit marks the card finished; the caller reads the decision off the final
// model after the program stops.
func (m initCardModel) quit() (tea.Model, tea.Cmd) {
	m.done = true
	return m, tea.Quit
}

func (m initCardModel) handleMenuKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch strings.ToLower(msg.String()) {
	case "enter", "y", "esc", "q", "ctrl+c":
		// Accepting and dismissing both keep the captured context.
		return m.quit()
	case "d", "n":
		m.decision.DisableContext = true
		return m.quit()
	case "e":
		m.mode = initCardEditNote
		m.noteInput.Focus()
		return m, textinput.Blink
	}
	return m, nil
}

func (m initCardModel) handleNoteKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch strings.ToLower(msg.String()) {
	case "enter":
		m.decision.SetUserNote = true
		m.decision.UserNote = strings.TrimSpace(m.noteInput.Value())
		return m.quit()
	case "esc":
		m.mode = initCardMenu
		m.noteInput.Blur()
		return m, nil
	case "ctrl+c":
		return m.quit()
	}
	var cmd tea.Cmd
	m.noteInput, cmd = m.noteInput.Update(msg)
	return m, cmd
}

func (m initCardModel) View() string {
	var b strings.Builder
	if m.mode == initCardEditNote {
		b.WriteString(initCardTitleStyle.Render("wut init: correction note"))
		b.WriteString("\n\n")
		b.WriteString(m.statusLine())
		b.WriteString("\n\n")
		b.WriteString(initCardBodyStyle.Render("A short note about this machine sharpens future suggestions."))
		b.WriteString("\n\n")
		b.WriteString(m.noteInput.View())
		b.WriteString("\n\n")
		b.WriteString(initCardHintStyle.Render("[enter] save note  [esc] back"))
		return initCardStyle.Render(b.String())
	}

	b.WriteString(initCardTitleStyle.Render("wut init"))
	b.WriteString("\n\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n\n")
	b.WriteString(initCardSectionStyle.Render("what wut learned about this machine"))
	for _, summaryLine := range m.summaryLines {
		b.WriteString("\n")
		b.WriteString(initCardSummaryStyle.Render(summaryLine))
	}
	b.WriteString("\n")
	for _, hint := range []string{
		"[enter] keep context and continue",
		"[d] disable machine context",
		"[e] edit correction note",
		"[esc] continue without changes",
	} {
		b.WriteString("\n")
		b.WriteString(initCardHintStyle.Render(hint))
	}
	return initCardStyle.Render(b.String())
}

// statusLine derives the animation frame, pulse message, and dot trail from
// the single tick counter.
func (m initCardModel) statusLine() string {
	frame := initCardMarkFrames[m.tick%len(initCardMarkFrames)]
	message := initCardPulseMessages[(m.tick/len(initCardMarkFrames))%len(initCardPulseMessages)]
	dots := strings.Repeat(".", m.tick%3+1)
	return initCardSubtleStyle.Render(
		fmt.Sprintf("%s %s%s", initCardMarkStyle.Render(frame), message, dots),
	)
}

// summarizeProfileLines keeps the first maxLines non-empty summary lines and
// folds the rest into a "+N more" marker.
func summarizeProfileLines(summary string, maxLines int) []string {
	if maxLines <= 0 {
		maxLines = initCardSummaryBudget
	}
	var kept []string
	for _, line := range strings.Split(summary, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
		}
	}
	if len(kept) <= maxLines {
		return kept
	}
	folded := kept[:maxLines:maxLines]
	return append(folded, fmt.Sprintf("- +%d more", len(kept)-maxLines))
}

func initCardTickCmd() tea.Cmd {
	return tea.Tick(700*time.Millisecond, func(time.Time) tea.Msg {
		return initCardTickMsg{}
	})
}

var (
	initCardMarkFrames = []string{
		"wut",
		"wut?",
		"wut!",
		"WUT",
	}

	initCardPulseMessages = []string{
		"reading the tools you reach for",
		"sizing up your shell habits",
		"lining up local command context",
		"teaching wut this machine",
	}

	initCardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("75")).
			Padding(1, 2)

	initCardTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("81"))

	initCardSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("117"))

	initCardMarkStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("51"))

	initCardSubtleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))

	initCardSummaryStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("253"))

	initCardBodyStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("253"))

	initCardHintStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("66"))
)
