package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/sandeepkv93/remindd/internal/model"
)

// Tally counts reminders per list section.
type Tally struct {
	Overdue  int
	Snoozed  int
	Upcoming int
	Closed   int
}

func CountSections(items []model.Reminder, now time.Time) Tally {
	var t Tally
	for _, r := range items {
		switch Section(r, now) {
		case sectionOverdue:
			t.Overdue++
		case sectionSnoozed:
			t.Snoozed++
		case sectionUpcoming:
			t.Upcoming++
		default:
			t.Closed++
		}
	}
	return t
}

// Delivered is a fired alarm shown under the panes.
type Delivered struct {
	Title string
	Body  string
	At    time.Time
	Early bool
}

// AppData is one frame of the watch screen. Delivered is oldest first.
type AppData struct {
	Now         time.Time
	Location    *time.Location
	Tally       Tally
	SelectedID  string
	Next        *model.Candidate
	List        string
	Detail      string
	Status      string
	StatusError bool
	Delivered   []Delivered
	Footer      string
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	alarmStyle  = lipgloss.NewStyle().Bold(true)

	redStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	yellowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	greenStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func dim(s string) string { return mutedStyle.Render(s) }

func RenderApp(data AppData) string {
	header := headerStyle.Render("remindd") + "  " + renderTally(data.Tally)
	if data.SelectedID != "" {
		header += "  " + dim("selected "+ShortID(data.SelectedID))
	}

	panes := []string{panelStyle.Width(58).Render(data.List)}
	if data.Detail != "" {
		panes = append(panes, panelStyle.Width(58).Render(data.Detail))
	}

	lines := []string{
		header,
		renderAlarm(data),
		lipgloss.JoinHorizontal(lipgloss.Top, panes...),
	}
	if data.Status != "" {
		if data.StatusError {
			lines = append(lines, errorStyle.Render(data.Status))
		} else {
			lines = append(lines, statusStyle.Render(data.Status))
		}
	}
	if len(data.Delivered) > 0 {
		lines = append(lines, panelStyle.Render(renderDelivered(data.Delivered, data.Location)))
	}
	if data.Footer != "" {
		lines = append(lines, dim(data.Footer))
	}
	return strings.Join(lines, "\n")
}

// renderTally colours each non-empty section the way list badges do.
func renderTally(t Tally) string {
	var parts []string
	if t.Overdue > 0 {
		parts = append(parts, redStyle.Render(fmt.Sprintf("%d overdue", t.Overdue)))
	}
	if t.Snoozed > 0 {
		parts = append(parts, yellowStyle.Render(fmt.Sprintf("%d snoozed", t.Snoozed)))
	}
	if t.Upcoming > 0 {
		parts = append(parts, greenStyle.Render(fmt.Sprintf("%d upcoming", t.Upcoming)))
	}
	if t.Closed > 0 {
		parts = append(parts, dim(fmt.Sprintf("%d closed", t.Closed)))
	}
	if len(parts) == 0 {
		return dim("no reminders")
	}
	return strings.Join(parts, "  ")
}

func renderAlarm(data AppData) string {
	line := RenderNext(data.Next, data.Now, data.Location)
	switch {
	case data.Next == nil:
		return dim(line)
	case data.Next.IsPreReminder:
		return alarmStyle.Inherit(yellowStyle).Render(line)
	default:
		return alarmStyle.Inherit(greenStyle).Render(line)
	}
}

// renderDelivered lists fired alarms newest first.
func renderDelivered(items []Delivered, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	lines := make([]string, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		d := items[i]
		level := "due"
		if d.Early {
			level = "early"
		}
		text := d.Title
		if d.Body != "" {
			text += ": " + d.Body
		}
		lines = append(lines, RenderNotification(level, text+" at "+d.At.In(loc).Format("15:04:05")))
	}
	return strings.Join(lines, "\n")
}

func RenderMarkdown(md string) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	out, err := glamour.Render(md, "dark")
	if err != nil {
		return md
	}
	return strings.TrimSpace(out)
}
