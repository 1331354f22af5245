package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// List styles
var (
	listDimStyle = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// VersionListModel - Interactive PHP version selection
// =============================================================================

// VersionRow is one selectable release.
type VersionRow struct {
	Version   string
	Date      string
	Installed bool
}

// VersionListModel is the bubbletea model for picking a PHP release to install.
// Installed releases are shown but cannot be selected.
type VersionListModel struct {
	Rows     []VersionRow
	Cursor   int
	Selected string
	Height   int
	Offset   int
}

// NewVersionListModel creates a version list model with rows newest first.
func NewVersionListModel(rows []VersionRow) VersionListModel {
	return VersionListModel{
		Rows:   rows,
		Height: 15,
	}
}

func (m VersionListModel) Init() tea.Cmd {
	return nil
}

func (m VersionListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Rows)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "enter":
			if len(m.Rows) == 0 || m.Rows[m.Cursor].Installed {
				return m, nil
			}
			m.Selected = m.Rows[m.Cursor].Version
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-6, 5)
	}
	return m, nil
}

func (m VersionListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select PHP Version"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ install  q quit"))
	b.WriteString("\n\n")

	end := min(m.Offset+m.Height, len(m.Rows))

	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		r := m.Rows[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		status := ""
		if r.Installed {
			status = iconSuccess
		}
		date := r.Date
		if date == "" {
			date = "—"
		}
		rows = append(rows, []string{cursor, r.Version, date, status})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Version", "Released", "Installed").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			idx := m.Offset + row
			if idx >= len(m.Rows) {
				return lipgloss.NewStyle()
			}
			base := lipgloss.NewStyle()
			if m.Rows[idx].Installed {
				base = base.Foreground(colorDim)
			} else if col == 1 {
				base = base.Foreground(colorGreen)
			}
			if idx == m.Cursor {
				base = base.Bold(true)
			}
			return base
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Rows))))

	return b.String()
}
