// Package update is the live terminal watch: a table of reminders that
// follows the local store, the next alarm, delivered notifications, and a
// command palette running the text commands.
package update

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/remindd/internal/commands"
	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/notifier"
	"github.com/sandeepkv93/remindd/internal/selector"
	"github.com/sandeepkv93/remindd/internal/views"
)

const (
	defaultSnooze    = "10m"
	keptNotification = 5
)

var errNoCommands = errors.New("commands are not available")

// Deps connects the screen to a running app. Any field may be nil.
type Deps struct {
	Updates  <-chan []model.Reminder
	Fired    <-chan notifier.Notification
	Run      func(line string) (commands.Result, error)
	Next     func() (*model.Candidate, error)
	Now      func() time.Time
	Location *time.Location
}

type StatusBar struct {
	Text    string
	IsError bool
}

type PaletteState struct {
	Active bool
	Input  string
}

type RemindersMsg struct {
	Items []model.Reminder
}

type FiredMsg struct {
	Notification notifier.Notification
}

type NextMsg struct {
	Next *model.Candidate
}

type CommandResultMsg struct {
	Line   string
	Result commands.Result
	Err    error
}

type SetStatusMsg struct {
	Text    string
	IsError bool
}

type ClearStatusMsg struct{}

type AppErrorMsg struct {
	Err error
}

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Complete key.Binding
	Snooze   key.Binding
	Dismiss  key.Binding
	Command  key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Complete, k.Snooze, k.Dismiss, k.Command, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Complete, k.Snooze, k.Dismiss},
		{k.Command, k.Help, k.Quit},
	}
}

func defaultKeys() keyMap {
	return keyMap{
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Complete: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "complete")),
		Snooze:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "snooze "+defaultSnooze)),
		Dismiss:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "dismiss")),
		Command:  key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "command")),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

type Model struct {
	Items         []model.Reminder
	Next          *model.Candidate
	Notifications []notifier.Notification
	Palette       PaletteState
	Status        StatusBar
	HelpVisible   bool
	Quitting      bool
	LastError     error

	deps         Deps
	keys         keyMap
	table        table.Model
	commandInput textinput.Model
	help         help.Model
}

func NewModel(deps Deps) Model {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	m := Model{deps: deps, keys: defaultKeys(), help: help.New()}

	cols := []table.Column{
		{Title: "ID", Width: 8},
		{Title: "Status", Width: 9},
		{Title: "Due", Width: 20},
		{Title: "Title", Width: 22},
	}
	m.table = table.New(table.WithColumns(cols), table.WithRows([]table.Row{}), table.WithFocused(true), table.WithHeight(12))

	m.commandInput = textinput.New()
	m.commandInput.Prompt = "/"
	m.commandInput.CharLimit = 256
	m.commandInput.Width = 48
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForReminders(m.deps.Updates), waitForFired(m.deps.Fired), m.fetchNext())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		if m.Palette.Active {
			return m.handlePaletteKey(typed)
		}
		switch {
		case key.Matches(typed, m.keys.Quit):
			m.Quitting = true
			return m, tea.Quit
		case key.Matches(typed, m.keys.Command):
			m.Palette = PaletteState{Active: true}
			m.commandInput.SetValue("")
			m.commandInput.Focus()
			m.Status = StatusBar{Text: "command palette active"}
			return m, nil
		case key.Matches(typed, m.keys.Help):
			m.HelpVisible = !m.HelpVisible
			m.help.ShowAll = m.HelpVisible
			return m, nil
		case key.Matches(typed, m.keys.Complete):
			return m.onSelected("complete")
		case key.Matches(typed, m.keys.Snooze):
			return m.onSelected("snooze", defaultSnooze)
		case key.Matches(typed, m.keys.Dismiss):
			return m.onSelected("dismiss")
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(typed)
		return m, cmd
	case RemindersMsg:
		m.Items = sortForDisplay(typed.Items, m.deps.Now())
		m.syncTable()
		return m, tea.Batch(waitForReminders(m.deps.Updates), m.fetchNext())
	case NextMsg:
		m.Next = typed.Next
		return m, nil
	case FiredMsg:
		m.Notifications = append(m.Notifications, typed.Notification)
		if len(m.Notifications) > keptNotification {
			m.Notifications = m.Notifications[len(m.Notifications)-keptNotification:]
		}
		m.Status = StatusBar{Text: "reminder: " + typed.Notification.Title}
		return m, tea.Batch(waitForFired(m.deps.Fired), m.fetchNext())
	case CommandResultMsg:
		if typed.Err != nil {
			m.LastError = typed.Err
			m.Status = StatusBar{Text: typed.Err.Error(), IsError: true}
			return m, nil
		}
		m.Status = StatusBar{Text: typed.Result.Message}
		return m, m.fetchNext()
	case SetStatusMsg:
		m.Status = StatusBar{Text: typed.Text, IsError: typed.IsError}
		return m, nil
	case ClearStatusMsg:
		m.Status = StatusBar{}
		return m, nil
	case AppErrorMsg:
		m.LastError = typed.Err
		if typed.Err != nil {
			m.Status = StatusBar{Text: typed.Err.Error(), IsError: true}
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handlePaletteKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.Palette = PaletteState{}
		m.commandInput.SetValue("")
		m.commandInput.Blur()
		m.Status = StatusBar{Text: "command palette closed"}
		return m, nil
	case "enter":
		line := strings.TrimSpace(m.commandInput.Value())
		m.Palette = PaletteState{}
		m.commandInput.SetValue("")
		m.commandInput.Blur()
		if line == "" {
			return m, nil
		}
		m.Status = StatusBar{Text: "running: " + line}
		return m, m.runCommand(line)
	}
	if msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace {
		text := string(msg.Runes)
		if msg.Type == tea.KeySpace {
			text = " "
		}
		m.commandInput.SetValue(m.commandInput.Value() + text)
		m.Palette.Input = m.commandInput.Value()
		return m, nil
	}
	var cmd tea.Cmd
	m.commandInput, cmd = m.commandInput.Update(msg)
	m.Palette.Input = m.commandInput.Value()
	return m, cmd
}

func (m Model) onSelected(verb string, args ...string) (Model, tea.Cmd) {
	sel, ok := m.Selected()
	if !ok {
		m.Status = StatusBar{Text: "nothing selected", IsError: true}
		return m, nil
	}
	line := strings.Join(append([]string{verb, sel.ID}, args...), " ")
	m.Status = StatusBar{Text: "running: " + line}
	return m, m.runCommand(line)
}

// Selected is the reminder under the table cursor.
func (m Model) Selected() (model.Reminder, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.Items) {
		return model.Reminder{}, false
	}
	return m.Items[i], true
}

func (m Model) runCommand(line string) tea.Cmd {
	run := m.deps.Run
	return func() tea.Msg {
		if run == nil {
			return CommandResultMsg{Line: line, Err: errNoCommands}
		}
		res, err := run(line)
		return CommandResultMsg{Line: line, Result: res, Err: err}
	}
}

func (m Model) fetchNext() tea.Cmd {
	next := m.deps.Next
	if next == nil {
		return nil
	}
	return func() tea.Msg {
		c, err := next()
		if err != nil {
			return AppErrorMsg{Err: err}
		}
		return NextMsg{Next: c}
	}
}

func waitForReminders(ch <-chan []model.Reminder) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		items, ok := <-ch
		if !ok {
			return nil
		}
		return RemindersMsg{Items: items}
	}
}

func waitForFired(ch <-chan notifier.Notification) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return FiredMsg{Notification: n}
	}
}

var sectionRank = map[string]int{"Overdue": 0, "Snoozed": 1, "Upcoming": 2, "Closed": 3}

// sortForDisplay orders pending reminders by due time ahead of closed
// ones, newest closed first.
func sortForDisplay(items []model.Reminder, now time.Time) []model.Reminder {
	out := append([]model.Reminder(nil), items...)
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := sectionRank[views.Section(out[i], now)], sectionRank[views.Section(out[j], now)]
		if si != sj {
			return si < sj
		}
		if si == sectionRank["Closed"] {
			return out[i].DueTime.After(out[j].DueTime)
		}
		return out[i].DueTime.Before(out[j].DueTime)
	})
	return out
}

func (m *Model) syncTable() {
	now := m.deps.Now()
	rows := make([]table.Row, 0, len(m.Items))
	for _, r := range m.Items {
		rows = append(rows, table.Row{
			views.ShortID(r.ID),
			string(r.Status),
			selector.HumanTime(r.DueTime, now, m.deps.Location),
			r.Title,
		})
	}
	m.table.SetRows(rows)
	if c := m.table.Cursor(); c >= len(rows) {
		m.table.SetCursor(max(len(rows)-1, 0))
	}
}

func (m Model) View() string {
	if m.Quitting {
		return ""
	}
	now := m.deps.Now()

	var detail []string
	if m.Palette.Active {
		detail = append(detail, views.RenderCommandPalette(true, m.commandInput.Value()))
	}
	selectedID := ""
	if sel, ok := m.Selected(); ok {
		selectedID = sel.ID
		detail = append(detail, views.RenderReminderDetail(sel, now, m.deps.Location))
	}

	list := m.table.View()
	if len(m.Items) == 0 {
		list = views.RenderReminderList(views.ReminderListData{Now: now, Location: m.deps.Location})
	}

	delivered := make([]views.Delivered, 0, len(m.Notifications))
	for _, n := range m.Notifications {
		delivered = append(delivered, views.Delivered{Title: n.Title, Body: n.Body, At: n.At, Early: n.PreReminder})
	}

	return views.RenderApp(views.AppData{
		Now:         now,
		Location:    m.deps.Location,
		Tally:       views.CountSections(m.Items, now),
		SelectedID:  selectedID,
		Next:        m.Next,
		List:        list,
		Detail:      strings.Join(detail, "\n\n"),
		Status:      m.Status.Text,
		StatusError: m.Status.IsError,
		Delivered:   delivered,
		Footer:      m.help.View(m.keys),
	})
}
