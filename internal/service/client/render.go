package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/oshokin/lockdown/internal/domain/lockdown"
)

// Status palette.
var (
	ColorLocked   = lipgloss.Color("#fb4934")
	ColorReleased = lipgloss.Color("#8ec07c")
	ColorWarning  = lipgloss.Color("#fabd2f")
	ColorDim      = lipgloss.Color("#928374")
	ColorHeader   = lipgloss.Color("#fe8019")
)

// Predefined status styles.
var (
	StyleLocked   = lipgloss.NewStyle().Foreground(ColorLocked).Bold(true)
	StyleReleased = lipgloss.NewStyle().Foreground(ColorReleased)
	StyleWarning  = lipgloss.NewStyle().Foreground(ColorWarning)
	StyleDim      = lipgloss.NewStyle().Foreground(ColorDim)
	StyleHeader   = lipgloss.NewStyle().Foreground(ColorHeader).Bold(true)
)

// timeLayout renders instants in status output.
const timeLayout = "2006-01-02 15:04:05 MST"

// FormatStatus renders a snapshot for the terminal.
func FormatStatus(snapshot lockdown.Snapshot, now time.Time, location *time.Location) string {
	if location == nil {
		location = time.Local
	}

	var b strings.Builder

	b.WriteString(stateIndicator(snapshot.State))
	b.WriteString("\n")
	b.WriteString(row("Privilege", privilegeLine(snapshot.Privilege)))

	if snapshot.Indicator.On {
		b.WriteString(row("Indicator", snapshot.Indicator.Text))
	}

	b.WriteString("\n")
	b.WriteString(header("Schedules"))
	b.WriteString("\n")

	if snapshot.Countdown == nil && snapshot.DailyWindow == nil {
		b.WriteString(StyleDim.Render("No schedules"))
		b.WriteString("\n")
	}

	if c := snapshot.Countdown; c != nil {
		b.WriteString(row("Countdown", fmt.Sprintf("%s, ends %s (%s left)",
			c.Duration, c.EndsAt().In(location).Format(timeLayout), c.Remaining(now).Round(time.Second))))
	}

	if w := snapshot.DailyWindow; w != nil {
		b.WriteString(row("Daily window", w.String()))
	}

	if len(snapshot.Alarms) > 0 {
		b.WriteString("\n")
		b.WriteString(header("Alarms"))
		b.WriteString("\n")

		for _, record := range snapshot.Alarms {
			kind := "one-shot"
			if record.Recurring() {
				kind = "daily"
			}

			b.WriteString(row(string(record.Key),
				fmt.Sprintf("%s %s", record.NextFire.In(location).Format(timeLayout), StyleDim.Render(kind))))
		}
	}

	if len(snapshot.Notices) > 0 {
		b.WriteString("\n")
		b.WriteString(header("Recent notices"))
		b.WriteString("\n")

		for _, notice := range snapshot.Notices {
			b.WriteString(fmt.Sprintf("%s  %s\n",
				StyleDim.Render(notice.Time.In(location).Format(time.TimeOnly)), notice.Text))
		}
	}

	return renderBox("Lockdown", strings.TrimRight(b.String(), "\n"))
}

// stateIndicator returns a colored state marker such as "● LOCKED (WindowActive)".
func stateIndicator(state lockdown.EnforcementState) string {
	if state.Idle() {
		return StyleReleased.Render("● IDLE")
	}

	return StyleLocked.Render(fmt.Sprintf("● LOCKED (%s)", state))
}

func privilegeLine(status lockdown.PrivilegeStatus) string {
	if status == lockdown.Granted {
		return StyleReleased.Render(status.String())
	}

	return StyleWarning.Render(status.String() + ", run `lockdown grant`")
}

func row(label, value string) string {
	return fmt.Sprintf("%s %s\n", StyleDim.Render(fmt.Sprintf("%-13s", label+":")), value)
}

// header renders a section header with an underline.
func header(text string) string {
	upper := strings.ToUpper(text)
	line := strings.Repeat("─", len(upper))

	return fmt.Sprintf("%s\n%s", StyleHeader.Render(upper), StyleDim.Render(line))
}

// renderBox wraps content in a rounded-border box with a title.
func renderBox(title, content string) string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorDim).
		PaddingLeft(2).
		PaddingRight(2).
		PaddingTop(1).
		PaddingBottom(1)

	return boxStyle.Render(StyleHeader.Render(strings.ToUpper(title)) + "\n\n" + content)
}
