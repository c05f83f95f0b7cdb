package ui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/rivo/tview"
)

// ConfirmExecution asks the user to approve one command before it runs.
// The second return is false when no backend could render, meaning the
// caller should fall back to its plain stdin prompt.
func ConfirmExecution(backend string, command string, risk string) (bool, bool, error) {
	command = strings.TrimSpace(command)
	risk = strings.TrimSpace(risk)

	var firstErr error
	for _, candidate := range backendCandidates(backend) {
		confirm := confirmImpl(candidate)
		if confirm == nil {
			continue
		}
		approved, err := confirm(command, risk)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		return approved, true, nil
	}
	return false, false, firstErr
}

func confirmImpl(backend string) func(string, string) (bool, error) {
	switch backend {
	case BackendBubbleTea:
		return confirmWithBubbleTea
	case BackendHuh:
		return confirmWithHuh
	case BackendTView:
		return confirmWithTView
	default:
		return nil
	}
}

var (
	confirmTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("81"))

	confirmCommandStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("75")).
				Padding(0, 2)

	confirmHintStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("66"))

	confirmRiskStyles = map[string]lipgloss.Style{
		"low":    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		"medium": lipgloss.NewStyle().Foreground(lipgloss.Color("179")),
		"high":   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
	}
)

func renderRisk(risk string) string {
	style, ok := confirmRiskStyles[strings.ToLower(risk)]
	if !ok {
		style = confirmHintStyle
	}
	return style.Render("risk: " + risk)
}

// Enter means no. Running a command needs a deliberate yes.
type confirmModel struct {
	command  string
	risk     string
	approved bool
	answered bool
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch strings.ToLower(key.String()) {
	case "y":
		m.approved = true
		m.answered = true
		return m, tea.Quit
	case "n", "enter", "esc", "ctrl+c":
		m.answered = true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	var b strings.Builder
	b.WriteString(confirmTitleStyle.Render("Run this command?"))
	b.WriteString("\n\n")
	b.WriteString(confirmCommandStyle.Render(m.command))
	b.WriteString("\n")
	b.WriteString(renderRisk(m.risk))
	b.WriteString("\n\n")
	b.WriteString(confirmHintStyle.Render("[y] run  [n] cancel"))
	return b.String()
}

func confirmWithBubbleTea(command string, risk string) (bool, error) {
	final, err := tea.NewProgram(confirmModel{command: command, risk: risk}, tea.WithAltScreen()).Run()
	if err != nil {
		return false, err
	}
	out, ok := final.(confirmModel)
	return ok && out.answered && out.approved, nil
}

func confirmWithHuh(command string, risk string) (bool, error) {
	var approved bool
	err := huh.NewConfirm().
		Title("Run this command?").
		Description(command + "\nrisk: " + risk).
		Affirmative("Run").
		Negative("Cancel").
		Value(&approved).
		WithTheme(huh.ThemeCharm()).
		Run()
	switch {
	case errors.Is(err, huh.ErrUserAborted):
		return false, nil
	case err != nil:
		return false, err
	}
	return approved, nil
}

func confirmWithTView(command string, risk string) (bool, error) {
	app := tview.NewApplication()
	choice := ""

	modal := tview.NewModal().
		SetText(fmt.Sprintf("Run this command?\n\n%s\n\nrisk: %s", command, risk)).
		AddButtons([]string{"Run", "Cancel"}).
		SetDoneFunc(func(_ int, label string) {
			choice = label
			app.Stop()
		})

	if err := app.SetRoot(modal, true).Run(); err != nil {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(choice), "run"), nil
}
