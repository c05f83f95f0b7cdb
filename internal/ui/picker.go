package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/rivo/tview"
	"github.com/wut-cli/wut/internal/history"
)

// Choice is one runnable option in the picker.
type Choice struct {
	Command string
	Reason  string
	Source  string
}

type pickerOption struct {
	Label  string
	Choice Choice
}

// PickCommand lets the user choose between the served suggestion, the
// backend's alternatives, and history matches. handled=false means fewer
// than two distinct options existed or no backend could render; a handled
// pick with an empty Command means the user cancelled. Either way the
// caller keeps the original suggestion.
func PickCommand(backend string, query string, suggested Choice, alternatives []string, matches []history.Match) (Choice, bool, error) {
	options := buildPickerOptions(suggested, alternatives, matches)
	if len(options) < 2 {
		return Choice{}, false, nil
	}

	var firstErr error
	for _, candidate := range backendCandidates(backend) {
		pick := pickerImpl(candidate)
		if pick == nil {
			continue
		}
		picked, err := pick(query, options)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		return picked, true, nil
	}
	return Choice{}, false, firstErr
}

func pickerImpl(backend string) func(string, []pickerOption) (Choice, error) {
	switch backend {
	case BackendBubbleTea:
		return pickWithBubbleTea
	case BackendHuh:
		return pickWithHuh
	case BackendTView:
		return pickWithTView
	default:
		return nil
	}
}

func buildPickerOptions(suggested Choice, alternatives []string, matches []history.Match) []pickerOption {
	type candidate struct {
		prefix string
		choice Choice
	}
	candidates := make([]candidate, 0, len(alternatives)+len(matches)+1)
	candidates = append(candidates, candidate{"[suggested] ", suggested})
	for _, alt := range alternatives {
		candidates = append(candidates, candidate{"[alt] ", Choice{
			Command: alt,
			Reason:  "backend alternative",
			Source:  "generated",
		}})
	}
	for _, match := range matches {
		candidates = append(candidates, candidate{"[history] ", Choice{
			Command: match.Command,
			Reason:  fmt.Sprintf("history match score %.2f", match.Score),
			Source:  match.Source,
		}})
	}

	options := make([]pickerOption, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		command := strings.TrimSpace(c.choice.Command)
		if command == "" {
			continue
		}
		key := strings.ToLower(command)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		c.choice.Command = command
		options = append(options, pickerOption{Label: c.prefix + command, Choice: c.choice})
	}
	return options
}

func pickWithHuh(query string, options []pickerOption) (Choice, error) {
	huhOptions := make([]huh.Option[string], 0, len(options))
	lookup := make(map[string]Choice, len(options))
	for _, option := range options {
		huhOptions = append(huhOptions, huh.NewOption(option.Label, option.Choice.Command))
		lookup[strings.ToLower(option.Choice.Command)] = option.Choice
	}

	choice := huhOptions[0].Value
	err := huh.NewSelect[string]().
		Title("wut picker").
		Description(fmt.Sprintf("Pick the command for: %q", strings.TrimSpace(query))).
		Options(huhOptions...).
		Filtering(true).
		Height(huhSelectHeight(len(huhOptions))).
		Value(&choice).
		WithTheme(huh.ThemeCharm()).
		Run()
	switch {
	case errors.Is(err, huh.ErrUserAborted):
		return Choice{}, nil
	case err != nil:
		return Choice{}, err
	}
	return lookup[strings.ToLower(strings.TrimSpace(choice))], nil
}

type pickerItem struct {
	label   string
	command string
}

func (i pickerItem) Title() string       { return i.label }
func (i pickerItem) Description() string { return "" }
func (i pickerItem) FilterValue() string { return i.label + " " + i.command }

type pickerModel struct {
	list      list.Model
	picked    string
	cancelled bool
	options   int
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		width, height := pickerSize(msg.Width, msg.Height, m.options)
		m.list.SetSize(width, height)
		return m, nil
	case tea.KeyMsg:
		// While the filter input has focus the keys belong to it.
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.cancelled = true
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(pickerItem); ok {
				m.picked = item.command
			}
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m pickerModel) View() string { return m.list.View() }

func pickWithBubbleTea(query string, options []pickerOption) (Choice, error) {
	items := make([]list.Item, 0, len(options))
	lookup := make(map[string]Choice, len(options))
	for _, option := range options {
		lookup[strings.ToLower(option.Choice.Command)] = option.Choice
		items = append(items, pickerItem{label: option.Label, command: option.Choice.Command})
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	delegate.SetSpacing(0)

	width, height := pickerSize(80, 24, len(items))
	picker := list.New(items, delegate, width, height)
	picker.Title = fmt.Sprintf("wut picker: %s", strings.TrimSpace(query))
	picker.SetShowHelp(false)
	picker.SetFilteringEnabled(true)

	final, err := tea.NewProgram(pickerModel{list: picker, options: len(items)}, tea.WithAltScreen()).Run()
	if err != nil {
		return Choice{}, err
	}
	out, ok := final.(pickerModel)
	if !ok || out.cancelled {
		return Choice{}, nil
	}
	return lookup[strings.ToLower(strings.TrimSpace(out.picked))], nil
}

func pickWithTView(query string, options []pickerOption) (Choice, error) {
	app := tview.NewApplication()
	listView := tview.NewList().ShowSecondaryText(false)
	listView.SetBorder(true)
	listView.SetTitle(fmt.Sprintf("wut picker: %s", strings.TrimSpace(query)))

	pickedIndex := -1
	for i, option := range options {
		index := i
		listView.AddItem(option.Label, "", 0, func() {
			pickedIndex = index
			app.Stop()
		})
	}
	listView.SetDoneFunc(app.Stop)

	if err := app.SetRoot(listView, true).SetFocus(listView).Run(); err != nil {
		return Choice{}, err
	}
	if pickedIndex < 0 {
		return Choice{}, nil
	}
	return options[pickedIndex].Choice, nil
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// pickerSize fits the bubbletea list to the terminal, keeping at least a
// readable minimum on tiny windows.
func pickerSize(termWidth, termHeight, optionCount int) (int, int) {
	if termWidth <= 0 {
		termWidth = 80
	}
	if termHeight <= 0 {
		termHeight = 24
	}

	width := clampInt(termWidth-4, min(32, termWidth), termWidth)

	visible := clampInt(optionCount, 3, 12)
	maxHeight := max(termHeight-2, 1)
	height := clampInt(visible+6, min(8, maxHeight), maxHeight)
	return width, height
}

func huhSelectHeight(optionCount int) int {
	return clampInt(optionCount+1, 4, 10)
}
