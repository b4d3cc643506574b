package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// formatLatency formats latency in a human-readable way
func formatLatency(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.2fs", float64(ms)/1000)
}

// truncateString truncates a string with ellipsis
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// StatusBracket returns a formatted status code bracket, for rendering
// an HTTP status alongside a fetched page.
func StatusBracket(code int) string {
	statusStyle := StatusCodeStyle(code)
	return statusStyle.Render(fmt.Sprintf("%d", code))
}

// Summary holds audit execution summary data.
type Summary struct {
	PagesCrawled   int
	TotalIssues    int
	CriticalCount  int
	HighCount      int
	MediumCount    int
	LowCount       int
	InfoCount      int
	Duration       time.Duration
	RequestsPerSec float64
	TargetURL      string
}

// PrintSummary prints a beautiful summary box for a finished audit.
func PrintSummary(s Summary) {
	fmt.Println()
	PrintSection("Audit Summary")
	fmt.Println()

	fmt.Printf("  %s %s\n",
		ConfigLabelStyle.Render("Target:"),
		URLStyle.Render(s.TargetURL),
	)

	fmt.Println()

	// Results box - simple fixed-width layout
	// Use simple ASCII to avoid Unicode width issues
	boxWidth := 50

	topBorder := "+" + strings.Repeat("-", boxWidth-2) + "+"
	bottomBorder := "+" + strings.Repeat("-", boxWidth-2) + "+"
	separator := "+" + strings.Repeat("-", boxWidth-2) + "+"

	fmt.Println(BracketStyle.Render("  " + topBorder))

	// Simple row format: "|  Label:          Value                    |"
	printRow := func(label string, value string, valueStyle lipgloss.Style) {
		// Fixed widths: label=18, value fills rest
		const labelW = 18
		const totalInner = 46 // boxWidth - 4 for borders and spaces

		// Pad label to fixed width
		labelPadded := label
		for len(labelPadded) < labelW {
			labelPadded += " "
		}

		// Calculate value padding (use rune count for visible width)
		valueW := totalInner - labelW
		valuePadded := value
		for len([]rune(valuePadded)) < valueW {
			valuePadded += " "
		}

		fmt.Printf("  |  %s%s|\n",
			StatLabelStyle.Render(labelPadded),
			valueStyle.Render(valuePadded),
		)
	}

	printRow("Pages Crawled:", fmt.Sprintf("%d", s.PagesCrawled), StatValueStyle)
	printRow("Total Issues:", fmt.Sprintf("%d", s.TotalIssues), StatValueStyle)

	fmt.Println(BracketStyle.Render("  " + separator))

	printRow("Critical:", fmt.Sprintf("%d", s.CriticalCount), SeverityStyle("critical"))
	printRow("High:", fmt.Sprintf("%d", s.HighCount), SeverityStyle("high"))
	printRow("Medium:", fmt.Sprintf("%d", s.MediumCount), SeverityStyle("medium"))
	printRow("Low:", fmt.Sprintf("%d", s.LowCount), SeverityStyle("low"))
	printRow("Info:", fmt.Sprintf("%d", s.InfoCount), SeverityStyle("info"))

	fmt.Println(BracketStyle.Render("  " + separator))

	printRow("Duration:", formatDuration(s.Duration), StatValueStyle)
	printRow("Req/sec:", fmt.Sprintf("%.1f", s.RequestsPerSec), StatValueStyle)

	fmt.Println(BracketStyle.Render("  " + bottomBorder))

	// Clean-page ratio: crawled pages minus the total issue count (floored
	// at zero), as a share of crawled pages. A page with several issues is
	// subtracted once per issue.
	fmt.Println()
	var clean float64
	if s.PagesCrawled > 0 {
		cleanPages := s.PagesCrawled - s.TotalIssues
		if cleanPages < 0 {
			cleanPages = 0
		}
		clean = float64(cleanPages) / float64(s.PagesCrawled) * 100
	}
	PrintCleanRatio(clean)

	fmt.Println()
	switch {
	case s.CriticalCount > 0 || s.HighCount > 0:
		PrintError(fmt.Sprintf("%d critical/high issue(s) found - review required", s.CriticalCount+s.HighCount))
	case s.TotalIssues > 0:
		PrintWarning(fmt.Sprintf("%d issue(s) found", s.TotalIssues))
	default:
		PrintSuccess("No issues found")
	}
	fmt.Println()
}

// PrintCleanRatio prints a visual meter for the share of crawled pages
// that surfaced no issue.
func PrintCleanRatio(percent float64) {
	barWidth := 25

	var color lipgloss.Color
	var icon string
	switch {
	case percent >= 99:
		color = lipgloss.Color("#00D26A")
		icon = "[+]"
	case percent >= 95:
		color = lipgloss.Color("#6BCB77")
		icon = "[+]"
	case percent >= 90:
		color = lipgloss.Color("#FFD93D")
		icon = "[!]"
	case percent >= 80:
		color = lipgloss.Color("#FF6B6B")
		icon = "[!]"
	default:
		color = lipgloss.Color("#FF0000")
		icon = "[X]"
	}

	filled := int(float64(barWidth) * percent / 100)
	bar := strings.Builder{}
	for i := 0; i < barWidth; i++ {
		if i < filled {
			bar.WriteString(lipgloss.NewStyle().Foreground(color).Render("#"))
		} else {
			bar.WriteString(ProgressEmptyStyle.Render("."))
		}
	}

	percentStyle := lipgloss.NewStyle().Foreground(color).Bold(true)

	labelStyled := StatLabelStyle.Render("Clean Pages: ")
	fmt.Printf("  %s%s %s %s %s\n",
		labelStyled,
		bar.String(),
		percentStyle.Render(fmt.Sprintf("%.1f%%", percent)),
		icon,
		getCleanRating(percent),
	)
}

// getCleanRating returns a text rating for a clean-page percentage.
func getCleanRating(percent float64) string {
	switch {
	case percent >= 99:
		return PassStyle.Render("Excellent")
	case percent >= 95:
		return PassStyle.Render("Good")
	case percent >= 90:
		return ErrorStyle.Render("Fair")
	case percent >= 80:
		return ErrorStyle.Render("Poor")
	default:
		return FailStyle.Render("Critical")
	}
}

// padRight pads a string to the right to reach a specific width
// Uses lipgloss.Width to correctly measure visible width (excludes ANSI codes)
func padRight(s string, width int) string {
	visibleWidth := lipgloss.Width(s)
	padding := width - visibleWidth
	if padding <= 0 {
		return s
	}
	return s + strings.Repeat(" ", padding)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
