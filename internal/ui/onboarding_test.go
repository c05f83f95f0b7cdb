package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func pressRune(t *testing.T, model tea.Model, r rune) initCardModel {
	t.Helper()
	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	card, ok := updated.(initCardModel)
	if !ok {
		t.Fatalf("expected initCardModel after %q", r)
	}
	return card
}

func pressEnter(t *testing.T, model tea.Model) initCardModel {
	t.Helper()
	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	card, ok := updated.(initCardModel)
	if !ok {
		t.Fatalf("expected initCardModel after enter")
	}
	return card
}

func TestInitCardMenuDecisions(t *testing.T) {
	cases := []struct {
		name           string
		key            rune
		useEnter       bool
		wantDisable    bool
		wantUserNoteOn bool
	}{
		{name: "enter keeps context", useEnter: true},
		{name: "d disables context", key: 'd', wantDisable: true},
		{name: "n disables context", key: 'n', wantDisable: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := newInitCardModel("- os=linux", "")
			var card initCardModel
			if tc.useEnter {
				card = pressEnter(t, model)
			} else {
				card = pressRune(t, model, tc.key)
			}
			if !card.done {
				t.Fatalf("expected done=true")
			}
			if card.decision.DisableContext != tc.wantDisable {
				t.Fatalf("DisableContext=%v want=%v", card.decision.DisableContext, tc.wantDisable)
			}
			if card.decision.SetUserNote != tc.wantUserNoteOn {
				t.Fatalf("SetUserNote=%v want=%v", card.decision.SetUserNote, tc.wantUserNoteOn)
			}
		})
	}
}

func TestInitCardNoteFlow(t *testing.T) {
	card := pressRune(t, newInitCardModel("- os=linux", ""), 'e')
	if card.mode != initCardEditNote {
		t.Fatalf("expected edit mode after e")
	}

	card.noteInput.SetValue("containers live under podman here")
	final := pressEnter(t, card)
	if !final.done {
		t.Fatalf("expected done=true after saving note")
	}
	if !final.decision.SetUserNote {
		t.Fatalf("expected SetUserNote=true")
	}
	if final.decision.UserNote != "containers live under podman here" {
		t.Fatalf("unexpected user note: %q", final.decision.UserNote)
	}
}

func TestInitCardNoteEscReturnsToMenu(t *testing.T) {
	card := pressRune(t, newInitCardModel("- os=linux", "old note"), 'e')
	updated, _ := card.Update(tea.KeyMsg{Type: tea.KeyEsc})
	back, ok := updated.(initCardModel)
	if !ok {
		t.Fatalf("expected initCardModel after esc")
	}
	if back.mode != initCardMenu {
		t.Fatalf("expected menu mode after esc")
	}
	if back.done {
		t.Fatalf("esc from note edit should not finish the card")
	}
}

func TestSummarizeProfileLines(t *testing.T) {
	lines := summarizeProfileLines(strings.Join([]string{
		"- a", "", "- b", "- c", "- d",
	}, "\n"), 2)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "- a" || lines[1] != "- b" {
		t.Fatalf("unexpected kept lines: %v", lines)
	}
	if lines[2] != "- +2 more" {
		t.Fatalf("unexpected overflow line: %q", lines[2])
	}

	if got := summarizeProfileLines("", 4); got != nil {
		t.Fatalf("expected nil for empty summary, got %v", got)
	}
}
