// Package mcpserver exposes reminder management as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/storage"
)

const (
	serverName    = "remindd"
	serverVersion = "1.0.0"
)

// Reminders is the part of the reminder repository the tools drive.
type Reminders interface {
	Create(ctx context.Context, in model.Reminder) (model.Reminder, error)
	Complete(ctx context.Context, id string) (model.Reminder, error)
	Snooze(ctx context.Context, id string, minutes int) (model.Reminder, error)
	Dismiss(ctx context.Context, id string) (model.Reminder, error)
	Reschedule(ctx context.Context, id string, due time.Time) (model.Reminder, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter storage.ReminderFilter) ([]model.Reminder, error)
	Sync(ctx context.Context) (int, error)
	NextNotification(ctx context.Context) (model.Candidate, bool, error)
}

type Server struct {
	mcpServer *server.MCPServer
	reminders Reminders
}

func NewServer(reminders Reminders) *Server {
	s := &Server{reminders: reminders}
	s.mcpServer = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying MCP server for serving.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio blocks serving the tools on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("add_reminder",
			mcp.WithDescription("Add a reminder with a title and due time. Optional pre-reminder, deadline and daily/weekly/monthly/yearly repetition."),
			mcp.WithString("title", mcp.Required(), mcp.Description("Reminder title")),
			mcp.WithString("due_time", mcp.Required(), mcp.Description("Due time in RFC3339 format (e.g. 2026-01-15T09:00:00Z)")),
			mcp.WithString("description", mcp.Description("Optional description")),
			mcp.WithString("priority", mcp.Description("Priority: low, medium, high (default: medium)")),
			mcp.WithNumber("remind_minutes_before", mcp.Description("Send an early notification this many minutes before the due time")),
			mcp.WithString("deadline", mcp.Description("Hard deadline in RFC3339 format; missing it marks the reminder MISSED")),
			mcp.WithString("repeat", mcp.Description("Repetition: daily, weekly, monthly, yearly")),
			mcp.WithNumber("repeat_interval", mcp.Description("Repeat every N units (default: 1)")),
			mcp.WithBoolean("repeat_after_completion", mcp.Description("Schedule the next instance from completion instead of the fixed calendar")),
		),
		s.handleAddReminder,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_reminders",
			mcp.WithDescription("List reminders, optionally filtered by status"),
			mcp.WithString("status", mcp.Description("Comma separated statuses: active, snoozed, completed, dismissed, missed")),
		),
		s.handleListReminders,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("next_notification",
			mcp.WithDescription("Show the notification that will fire next"),
		),
		s.handleNextNotification,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("complete_reminder",
			mcp.WithDescription("Mark a reminder as completed"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Reminder ID")),
		),
		s.handleComplete,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("snooze_reminder",
			mcp.WithDescription("Snooze a reminder for a number of minutes"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Reminder ID")),
			mcp.WithNumber("minutes", mcp.Required(), mcp.Description("Minutes to snooze")),
		),
		s.handleSnooze,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("dismiss_reminder",
			mcp.WithDescription("Dismiss a reminder without completing it"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Reminder ID")),
		),
		s.handleDismiss,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("reschedule_reminder",
			mcp.WithDescription("Move a reminder to a new due time and reactivate it"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Reminder ID")),
			mcp.WithString("due_time", mcp.Required(), mcp.Description("New due time in RFC3339 format")),
		),
		s.handleReschedule,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("delete_reminder",
			mcp.WithDescription("Delete a reminder permanently"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Reminder ID")),
		),
		s.handleDelete,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("sync_reminders",
			mcp.WithDescription("Push every unsynced local change to the cloud store"),
		),
		s.handleSync,
	)
}

func (s *Server) handleAddReminder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := strings.TrimSpace(req.GetString("title", ""))
	if title == "" {
		return mcp.NewToolResultError("title is required"), nil
	}
	due, err := parseTime(req.GetString("due_time", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid due_time: %v (use RFC3339, e.g. 2026-01-15T09:00:00Z)", err)), nil
	}

	r := model.Reminder{
		Title:       title,
		Description: req.GetString("description", ""),
		DueTime:     due,
		Priority:    model.Priority(strings.ToUpper(req.GetString("priority", string(model.PriorityMedium)))),
	}
	if before := req.GetFloat("remind_minutes_before", 0); before > 0 {
		at := due.Add(-time.Duration(before * float64(time.Minute)))
		r.ReminderTime = &at
	}
	if raw := req.GetString("deadline", ""); raw != "" {
		dl, err := parseTime(raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid deadline: %v", err)), nil
		}
		r.Deadline = &dl
	}
	if kind := req.GetString("repeat", ""); kind != "" {
		r.Recurrence = &model.RecurrenceRule{
			Kind:            model.RecurrenceKind(strings.ToLower(kind)),
			Interval:        req.GetInt("repeat_interval", 1),
			AfterCompletion: req.GetBool("repeat_after_completion", false),
		}
	}

	added, err := s.reminders.Create(ctx, r)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to add reminder: %v", err)), nil
	}
	return jsonResult(added), nil
}

func (s *Server) handleListReminders(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var filter storage.ReminderFilter
	if raw := req.GetString("status", ""); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st := model.Status(strings.ToUpper(strings.TrimSpace(part)))
			if !st.IsValid() {
				return mcp.NewToolResultError(fmt.Sprintf("unknown status %q", part)), nil
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}

	reminders, err := s.reminders.List(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list reminders: %v", err)), nil
	}
	if len(reminders) == 0 {
		return mcp.NewToolResultText("No reminders found."), nil
	}
	return jsonResult(reminders), nil
}

func (s *Server) handleNextNotification(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, ok, err := s.reminders.NextNotification(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to select next notification: %v", err)), nil
	}
	if !ok {
		return mcp.NewToolResultText("Nothing scheduled."), nil
	}
	return jsonResult(c), nil
}

func (s *Server) handleComplete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.mutate(ctx, req, "complete", s.reminders.Complete)
}

func (s *Server) handleDismiss(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.mutate(ctx, req, "dismiss", s.reminders.Dismiss)
}

func (s *Server) handleSnooze(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	minutes := req.GetInt("minutes", 0)
	if minutes <= 0 {
		return mcp.NewToolResultError("minutes must be a positive number"), nil
	}
	return s.mutate(ctx, req, "snooze", func(ctx context.Context, id string) (model.Reminder, error) {
		return s.reminders.Snooze(ctx, id, minutes)
	})
}

func (s *Server) handleReschedule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	due, err := parseTime(req.GetString("due_time", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid due_time: %v", err)), nil
	}
	return s.mutate(ctx, req, "reschedule", func(ctx context.Context, id string) (model.Reminder, error) {
		return s.reminders.Reschedule(ctx, id, due)
	})
}

func (s *Server) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("id is required"), nil
	}
	if err := s.reminders.Delete(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete reminder: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Reminder %s deleted.", id)), nil
}

func (s *Server) handleSync(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.reminders.Sync(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("sync incomplete after %d pushes: %v", n, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Pushed %d reminders.", n)), nil
}

func (s *Server) mutate(ctx context.Context, req mcp.CallToolRequest, verb string, do func(context.Context, string) (model.Reminder, error)) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("id is required"), nil
	}
	out, err := do(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to %s reminder: %v", verb, err)), nil
	}
	return jsonResult(out), nil
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339, raw)
}

func jsonResult(v any) *mcp.CallToolResult {
	output, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(output))
}
