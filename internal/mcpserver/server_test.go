package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandeepkv93/remindd/internal/app"
	"github.com/sandeepkv93/remindd/internal/config"
	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/notifier"
	"github.com/sandeepkv93/remindd/internal/remote"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.OwnerID = "owner-1"
	cfg.Timezone = "UTC"
	cfg.Database.Path = filepath.Join(t.TempDir(), "mcp.db")

	a, err := app.New(cfg, nil, app.WithRemote(remote.NewMemory()), app.WithNotifier(notifier.Nop{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return NewServer(a.Reminders)
}

func call(t *testing.T, h server.ToolHandlerFunc, args map[string]any) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestAddListAndComplete(t *testing.T) {
	s := newTestServer(t)
	due := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)

	out, isErr := call(t, s.handleAddReminder, map[string]any{
		"title":                 "Water plants",
		"due_time":              due.Format(time.RFC3339),
		"priority":              "high",
		"remind_minutes_before": float64(30),
		"repeat":                "daily",
	})
	require.False(t, isErr, out)
	var added model.Reminder
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	assert.Equal(t, model.PriorityHigh, added.Priority)
	require.NotNil(t, added.ReminderTime)
	assert.True(t, added.ReminderTime.Equal(due.Add(-30*time.Minute)))
	require.NotNil(t, added.Recurrence)
	assert.Equal(t, model.RecurrenceDaily, added.Recurrence.Kind)
	assert.Equal(t, 1, added.Recurrence.Interval)

	out, isErr = call(t, s.handleNextNotification, nil)
	require.False(t, isErr, out)
	var next model.Candidate
	require.NoError(t, json.Unmarshal([]byte(out), &next))
	assert.True(t, next.IsPreReminder)
	assert.Equal(t, "Upcoming: Water plants", next.Title)

	out, isErr = call(t, s.handleComplete, map[string]any{"id": added.ID})
	require.False(t, isErr, out)

	out, _ = call(t, s.handleListReminders, map[string]any{"status": "completed"})
	var done []model.Reminder
	require.NoError(t, json.Unmarshal([]byte(out), &done))
	require.Len(t, done, 1)
	assert.Equal(t, added.ID, done[0].ID)
}

func TestSnoozeRescheduleDismissDelete(t *testing.T) {
	s := newTestServer(t)
	due := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	out, isErr := call(t, s.handleAddReminder, map[string]any{"title": "Stretch", "due_time": due.Format(time.RFC3339)})
	require.False(t, isErr, out)
	var r model.Reminder
	require.NoError(t, json.Unmarshal([]byte(out), &r))

	out, isErr = call(t, s.handleSnooze, map[string]any{"id": r.ID, "minutes": float64(10)})
	require.False(t, isErr, out)
	assert.Contains(t, out, `"SNOOZED"`)

	moved := due.Add(3 * time.Hour)
	out, isErr = call(t, s.handleReschedule, map[string]any{"id": r.ID, "due_time": moved.Format(time.RFC3339)})
	require.False(t, isErr, out)
	assert.Contains(t, out, `"ACTIVE"`)

	out, isErr = call(t, s.handleDismiss, map[string]any{"id": r.ID})
	require.False(t, isErr, out)
	assert.Contains(t, out, `"DISMISSED"`)

	out, isErr = call(t, s.handleDelete, map[string]any{"id": r.ID})
	require.False(t, isErr, out)
	assert.Equal(t, "Reminder "+r.ID+" deleted.", out)

	out, _ = call(t, s.handleListReminders, nil)
	assert.Equal(t, "No reminders found.", out)
}

func TestToolErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		h    server.ToolHandlerFunc
		args map[string]any
		want string
	}{
		{"missing title", s.handleAddReminder, map[string]any{"due_time": "2026-01-01T09:00:00Z"}, "title is required"},
		{"bad due time", s.handleAddReminder, map[string]any{"title": "x", "due_time": "tomorrow"}, "invalid due_time"},
		{"bad repeat", s.handleAddReminder, map[string]any{"title": "x", "due_time": "2026-01-01T09:00:00Z", "repeat": "hourly"}, "failed to add reminder"},
		{"bad status", s.handleListReminders, map[string]any{"status": "done"}, "unknown status"},
		{"snooze without minutes", s.handleSnooze, map[string]any{"id": "a"}, "minutes must be a positive number"},
		{"complete unknown", s.handleComplete, map[string]any{"id": "nope"}, "failed to complete reminder"},
		{"dismiss without id", s.handleDismiss, nil, "id is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, isErr := call(t, tt.h, tt.args)
			assert.True(t, isErr)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestSyncAndEmptyNext(t *testing.T) {
	s := newTestServer(t)

	out, isErr := call(t, s.handleNextNotification, nil)
	require.False(t, isErr)
	assert.Equal(t, "Nothing scheduled.", out)

	out, isErr = call(t, s.handleSync, nil)
	require.False(t, isErr, out)
	assert.Equal(t, "Pushed 0 reminders.", out)
}
