package update

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/remindd/internal/commands"
	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/notifier"
)

var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type recorder struct {
	lines []string
	err   error
}

func (r *recorder) run(line string) (commands.Result, error) {
	r.lines = append(r.lines, line)
	if r.err != nil {
		return commands.Result{}, r.err
	}
	return commands.Result{Message: "ok: " + line}, nil
}

func newTestModel(rec *recorder) Model {
	return NewModel(Deps{
		Run:      rec.run,
		Now:      func() time.Time { return fixedNow },
		Location: time.UTC,
	})
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func step(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return out, cmd
}

func sampleItems() []model.Reminder {
	return []model.Reminder{
		{ID: "dddddddd-done", Title: "Old", DueTime: fixedNow.Add(-48 * time.Hour), Status: model.StatusCompleted, Priority: model.PriorityLow},
		{ID: "aaaaaaaa-gym", Title: "Gym", DueTime: fixedNow.Add(8 * time.Hour), Status: model.StatusActive, Priority: model.PriorityMedium},
	}
}

func TestNewModelDefaults(t *testing.T) {
	m := newTestModel(&recorder{})
	if m.Palette.Active || m.Quitting || m.HelpVisible {
		t.Fatalf("unexpected initial state: %+v", m.Palette)
	}
	if _, ok := m.Selected(); ok {
		t.Fatalf("empty model should have no selection")
	}
	view := m.View()
	for _, want := range []string{"no reminders", "(no reminders)", "next: nothing scheduled"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestRemindersMsgOrdersPendingFirst(t *testing.T) {
	m, _ := step(t, newTestModel(&recorder{}), RemindersMsg{Items: sampleItems()})
	if len(m.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(m.Items))
	}
	if m.Items[0].Title != "Gym" || m.Items[1].Title != "Old" {
		t.Fatalf("unexpected order: %q, %q", m.Items[0].Title, m.Items[1].Title)
	}
	sel, ok := m.Selected()
	if !ok || sel.ID != "aaaaaaaa-gym" {
		t.Fatalf("expected Gym selected, got %+v", sel)
	}
	view := m.View()
	for _, want := range []string{"selected aaaaaaaa", "1 upcoming", "1 closed"} {
		if !strings.Contains(view, want) {
			t.Fatalf("header missing %q:\n%s", want, view)
		}
	}

	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyDown})
	if sel, _ := m.Selected(); sel.ID != "dddddddd-done" {
		t.Fatalf("down should move selection, got %q", sel.ID)
	}
}

func TestPaletteRunsCommandLine(t *testing.T) {
	rec := &recorder{}
	m, _ := step(t, newTestModel(rec), runes("/"))
	if !m.Palette.Active {
		t.Fatalf("palette should open on /")
	}
	m, _ = step(t, m, runes("show"))
	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	m, _ = step(t, m, runes("all"))
	if m.Palette.Input != "show all" {
		t.Fatalf("palette input = %q", m.Palette.Input)
	}
	if !strings.Contains(m.View(), "command: /show all") {
		t.Fatalf("palette should be rendered")
	}

	m, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.Palette.Active {
		t.Fatalf("enter should close the palette")
	}
	if cmd == nil {
		t.Fatalf("enter should produce a command")
	}
	res, ok := cmd().(CommandResultMsg)
	if !ok {
		t.Fatalf("expected CommandResultMsg")
	}
	if res.Line != "show all" || len(rec.lines) != 1 || rec.lines[0] != "show all" {
		t.Fatalf("unexpected run: %+v %v", res, rec.lines)
	}

	m, _ = step(t, m, res)
	if m.Status.Text != "ok: show all" || m.Status.IsError {
		t.Fatalf("unexpected status: %+v", m.Status)
	}
}

func TestPaletteEscapeCancels(t *testing.T) {
	rec := &recorder{}
	m, _ := step(t, newTestModel(rec), runes("/"))
	m, _ = step(t, m, runes("sync"))
	m, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.Palette.Active || cmd != nil || len(rec.lines) != 0 {
		t.Fatalf("escape should cancel without running")
	}
}

func TestActionKeysTargetSelection(t *testing.T) {
	cases := []struct {
		key  string
		want string
	}{
		{"c", "complete aaaaaaaa-gym"},
		{"s", "snooze aaaaaaaa-gym 10m"},
		{"x", "dismiss aaaaaaaa-gym"},
	}
	for _, tc := range cases {
		rec := &recorder{}
		m, _ := step(t, newTestModel(rec), RemindersMsg{Items: sampleItems()})
		_, cmd := step(t, m, runes(tc.key))
		if cmd == nil {
			t.Fatalf("%s: expected a command", tc.key)
		}
		cmd()
		if len(rec.lines) != 1 || rec.lines[0] != tc.want {
			t.Fatalf("%s: ran %v, want %q", tc.key, rec.lines, tc.want)
		}
	}
}

func TestActionWithoutSelection(t *testing.T) {
	rec := &recorder{}
	m, cmd := step(t, newTestModel(rec), runes("c"))
	if cmd != nil || !m.Status.IsError || m.Status.Text != "nothing selected" {
		t.Fatalf("unexpected result: cmd=%v status=%+v", cmd != nil, m.Status)
	}
}

func TestCommandErrorShowsInStatus(t *testing.T) {
	boom := errors.New("no reminder matches \"x\"")
	m, _ := step(t, newTestModel(&recorder{}), CommandResultMsg{Line: "complete x", Err: boom})
	if !m.Status.IsError || m.Status.Text != boom.Error() || !errors.Is(m.LastError, boom) {
		t.Fatalf("unexpected status: %+v", m.Status)
	}
}

func TestFiredKeepsLatestNotifications(t *testing.T) {
	m := newTestModel(&recorder{})
	for i := 0; i < 7; i++ {
		m, _ = step(t, m, FiredMsg{Notification: notifier.Notification{
			Title: "Gym " + string(rune('a'+i)),
			At:    fixedNow,
		}})
	}
	if len(m.Notifications) != keptNotification {
		t.Fatalf("expected %d notifications, got %d", keptNotification, len(m.Notifications))
	}
	if got := m.Notifications[len(m.Notifications)-1].Title; got != "Gym g" {
		t.Fatalf("unexpected latest notification %q", got)
	}
	view := m.View()
	if !strings.Contains(view, "notification: [DUE] Gym g at 09:00:00") {
		t.Fatalf("latest notification should be rendered:\n%s", view)
	}
	if strings.Index(view, "Gym g") > strings.Index(view, "Gym c") {
		t.Fatalf("newest delivery should be listed first:\n%s", view)
	}
	if strings.Contains(view, "Gym b") {
		t.Fatalf("dropped notifications should not be rendered")
	}
}

func TestHelpToggleAndQuit(t *testing.T) {
	m, _ := step(t, newTestModel(&recorder{}), runes("?"))
	if !m.HelpVisible {
		t.Fatalf("? should show help")
	}
	m, cmd := step(t, m, runes("q"))
	if !m.Quitting || cmd == nil {
		t.Fatalf("q should quit")
	}
	if m.View() != "" {
		t.Fatalf("quitting view should be empty")
	}
}

func TestNextMsgRendered(t *testing.T) {
	c := &model.Candidate{Title: "Gym", TriggerTime: fixedNow.Add(time.Hour)}
	m, _ := step(t, newTestModel(&recorder{}), NextMsg{Next: c})
	if !strings.Contains(m.View(), "next: [DUE] Gym today at 10:00") {
		t.Fatalf("next alarm should be rendered:\n%s", m.View())
	}
}

func TestWaitCommandsReadChannels(t *testing.T) {
	updates := make(chan []model.Reminder, 1)
	updates <- sampleItems()
	msg, ok := waitForReminders(updates)().(RemindersMsg)
	if !ok || len(msg.Items) != 2 {
		t.Fatalf("unexpected message %+v", msg)
	}
	close(updates)
	if got := waitForReminders(updates)(); got != nil {
		t.Fatalf("closed channel should yield nil, got %T", got)
	}

	feed := NewFeed(1)
	_ = feed.Send(context.Background(), notifier.Notification{Title: "first"})
	_ = feed.Send(context.Background(), notifier.Notification{Title: "dropped"})
	fired, ok := waitForFired(feed.C())().(FiredMsg)
	if !ok || fired.Notification.Title != "first" {
		t.Fatalf("unexpected fired message %+v", fired)
	}
	if waitForReminders(nil) != nil || waitForFired(nil) != nil {
		t.Fatalf("nil channels should not produce commands")
	}
}
