package cli

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m VersionListModel, keys ...string) (VersionListModel, tea.Cmd) {
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(keyMsg(k))
		m = next.(VersionListModel)
	}
	return m, cmd
}

var pickerRows = []VersionRow{
	{Version: "8.3.4", Date: "14 Mar 2024"},
	{Version: "8.2.17", Date: "14 Mar 2024", Installed: true},
	{Version: "8.1.27", Date: "21 Dec 2023"},
}

func TestVersionListSelect(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want string
	}{
		{"first row", []string{"enter"}, "8.3.4"},
		{"arrow down", []string{"down", "down", "enter"}, "8.1.27"},
		{"vim keys", []string{"j", "j", "k", "k", "enter"}, "8.3.4"},
		{"stops at the end", []string{"down", "down", "down", "down", "enter"}, "8.1.27"},
		{"installed rows are not selectable", []string{"down", "enter"}, ""},
		{"quit", []string{"q"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := press(NewVersionListModel(pickerRows), tt.keys...)
			if m.Selected != tt.want {
				t.Errorf("Selected = %q, want %q", m.Selected, tt.want)
			}
		})
	}
}

func TestVersionListQuitsOnSelect(t *testing.T) {
	_, cmd := press(NewVersionListModel(pickerRows), "enter")
	if cmd == nil {
		t.Fatal("enter on a selectable row should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("enter should return tea.Quit")
	}

	_, cmd = press(NewVersionListModel(pickerRows), "down", "enter")
	if cmd != nil {
		t.Error("enter on an installed row should not quit")
	}
}

func TestVersionListScrolls(t *testing.T) {
	m := NewVersionListModel(pickerRows)
	m.Height = 1
	m, _ = press(m, "down", "down")
	if m.Offset != 2 {
		t.Errorf("Offset = %d, want 2", m.Offset)
	}
	m, _ = press(m, "up")
	if m.Offset != 1 {
		t.Errorf("Offset = %d, want 1", m.Offset)
	}
}

func TestVersionListEmpty(t *testing.T) {
	m, _ := press(NewVersionListModel(nil), "down", "enter")
	if m.Selected != "" {
		t.Errorf("Selected = %q, want empty", m.Selected)
	}
}

func TestVersionListView(t *testing.T) {
	view := NewVersionListModel(pickerRows).View()
	for _, want := range []string{"Select PHP Version", "8.3.4", "8.2.17", "21 Dec 2023", "[1/3]"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}
