package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// =============================================================================
// Palette and styles
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")
	colorGreen  = lipgloss.Color("35")
	colorYellow = lipgloss.Color("220")
	colorRed    = lipgloss.Color("167")
	colorBlue   = lipgloss.Color("75")
	colorWhite  = lipgloss.Color("255")
	colorGray   = lipgloss.Color("245")
	colorDim    = lipgloss.Color("240")
)

// Styles shared by the commands and the version picker.
var (
	StyleTitle     = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	StyleHighlight = lipgloss.NewStyle().Foreground(colorCyan)
	StyleValue     = lipgloss.NewStyle().Foreground(colorWhite)
	StyleDim       = lipgloss.NewStyle().Foreground(colorDim)
	StyleSuccess   = lipgloss.NewStyle().Foreground(colorGreen)
	StyleWarning   = lipgloss.NewStyle().Foreground(colorYellow)
	StyleError     = lipgloss.NewStyle().Foreground(colorRed)
)

var (
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)
	styleLabel       = lipgloss.NewStyle().Foreground(colorGray)
	styleCommand     = lipgloss.NewStyle().Foreground(colorBlue)
)

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
)

// =============================================================================
// Status lines
// =============================================================================

func printStatus(icon string, color lipgloss.Color, msg string) {
	fmt.Println(lipgloss.NewStyle().Foreground(color).Render(icon) + " " + msg)
}

func printSuccess(format string, args ...any) {
	printStatus(iconSuccess, colorGreen, fmt.Sprintf(format, args...))
}

func printError(format string, args ...any) {
	printStatus(iconError, colorRed, fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...any) {
	printStatus(iconWarning, colorYellow, StyleWarning.Render(fmt.Sprintf(format, args...)))
}

func printInfo(format string, args ...any) {
	printStatus(iconInfo, colorGray, fmt.Sprintf(format, args...))
}

// printDetail prints an indented, dimmed line below a status line.
func printDetail(format string, args ...any) {
	fmt.Println("  " + StyleDim.Render(fmt.Sprintf(format, args...)))
}

// printFile prints an install prefix or written file.
func printFile(path string) {
	fmt.Println("  " + StyleDim.Render(iconArrow) + " " + StyleValue.Render(path))
}

func printKeyValue(key, value string) {
	fmt.Println(styleLabel.Width(12).Render(key) + " " + StyleValue.Render(value))
}

func printNextStep(description, cmd string) {
	fmt.Println(StyleDim.Render(description+":") + " " + styleCommand.Render(cmd))
}

func printNewline() { fmt.Println() }

// printBuildStats prints "  php-src-debian · 2 attempts · 4m12s · source".
func printBuildStats(driverName string, attempts int, d time.Duration, binary bool) {
	parts := []string{StyleDim.Render(driverName)}
	if attempts > 1 {
		parts = append(parts, StyleDim.Render(fmt.Sprintf("%d attempts", attempts)))
	}
	parts = append(parts, StyleDim.Render(d.Round(time.Second).String()))
	if binary {
		parts = append(parts, StyleSuccess.Render("binary"))
	} else {
		parts = append(parts, styleLabel.Render("source"))
	}
	fmt.Println("  " + strings.Join(parts, StyleDim.Render(" · ")))
}

// =============================================================================
// Tables
// =============================================================================

// newTable returns a table with dim rounded borders and a bold header row.
func newTable(headers ...string) *table.Table {
	header := styleLabel.Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(StyleDim).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == -1 {
				return header
			}
			return cell
		})
}
