package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidStatus   = errors.New("model: invalid reminder status")
	ErrInvalidPriority = errors.New("model: invalid reminder priority")
	ErrInvalidSchedule = errors.New("model: invalid reminder schedule")
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSnoozed   Status = "SNOOZED"
	StatusCompleted Status = "COMPLETED"
	StatusDismissed Status = "DISMISSED"
	StatusMissed    Status = "MISSED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusSnoozed, StatusCompleted, StatusDismissed, StatusMissed:
		return true
	default:
		return false
	}
}

// Pending reports whether a reminder in this status can still notify.
func (s Status) Pending() bool {
	return s == StatusActive || s == StatusSnoozed
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

type Reminder struct {
	ID                string          `json:"id"`
	OwnerID           string          `json:"ownerId"`
	Title             string          `json:"title"`
	Description       string          `json:"description,omitempty"`
	DueTime           time.Time       `json:"dueTime"`
	ReminderTime      *time.Time      `json:"reminderTime,omitempty"`
	Deadline          *time.Time      `json:"deadline,omitempty"`
	Status            Status          `json:"status"`
	Priority          Priority        `json:"priority"`
	Recurrence        *RecurrenceRule `json:"recurrence,omitempty"`
	SnoozeUntil       *time.Time      `json:"snoozeUntil,omitempty"`
	TargetOccurrences *int            `json:"targetOccurrences,omitempty"`
	CurrentOccurrence int             `json:"currentOccurrence"`
	GroupID           string          `json:"groupId,omitempty"`
	TagIDs            []string        `json:"tagIds,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	LastModified      time.Time       `json:"lastModified"`
	CompletedAt       *time.Time      `json:"completedAt,omitempty"`

	// IsSynced is local bookkeeping and never leaves the device.
	IsSynced bool `json:"-"`
}

func (r Reminder) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("model: reminder id is required")
	}
	if strings.TrimSpace(r.OwnerID) == "" {
		return errors.New("model: reminder owner_id is required")
	}
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("model: reminder title is required")
	}
	if r.DueTime.IsZero() {
		return errors.New("model: reminder due_time is required")
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, r.Status)
	}
	if !r.Priority.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, r.Priority)
	}
	if r.ReminderTime != nil && r.ReminderTime.After(r.DueTime) {
		return fmt.Errorf("%w: reminder_time after due_time", ErrInvalidSchedule)
	}
	if r.Deadline != nil && r.Deadline.Before(r.DueTime) {
		return fmt.Errorf("%w: deadline before due_time", ErrInvalidSchedule)
	}
	if r.Recurrence != nil {
		if err := r.Recurrence.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// UnmarshalJSON decodes a reminder document. A recurrence that fails to
// decode leaves the reminder non-recurring instead of rejecting it.
func (r *Reminder) UnmarshalJSON(data []byte) error {
	type plain Reminder
	aux := struct {
		*plain
		Recurrence json.RawMessage `json:"recurrence,omitempty"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Recurrence = DecodeRecurrence(aux.Recurrence)
	return nil
}

func (r Reminder) Key() string         { return r.ID }
func (r Reminder) Modified() time.Time { return r.LastModified }
func (r Reminder) Synced() bool        { return r.IsSynced }
func (r Reminder) Owner() string       { return r.OwnerID }

func (r Reminder) HasPreReminder() bool {
	return r.ReminderTime != nil && r.ReminderTime.Before(r.DueTime)
}

func (r Reminder) WithSynced(v bool) Reminder {
	r.IsSynced = v
	return r
}

// Touch stamps a local mutation.
func (r Reminder) Touch(now time.Time) Reminder {
	r.LastModified = now
	r.IsSynced = false
	return r
}

// PreReminderOffset is how long before the due time the pre-reminder fires.
func (r Reminder) PreReminderOffset() (time.Duration, bool) {
	if !r.HasPreReminder() {
		return 0, false
	}
	return r.DueTime.Sub(*r.ReminderTime), true
}

// NextInstance copies a recurring reminder forward onto a new row due at
// due. The pre-reminder offset and the rule travel with it.
func (r Reminder) NextInstance(id string, due, now time.Time) Reminder {
	next := r
	next.ID = id
	next.Status = StatusActive
	next.DueTime = due
	if off, ok := r.PreReminderOffset(); ok {
		rt := due.Add(-off)
		next.ReminderTime = &rt
	} else {
		next.ReminderTime = nil
	}
	if r.Recurrence != nil {
		rule := *r.Recurrence
		rule.DaysOfWeek = append([]int(nil), r.Recurrence.DaysOfWeek...)
		next.Recurrence = &rule
	}
	next.TagIDs = append([]string(nil), r.TagIDs...)
	next.SnoozeUntil = nil
	next.CompletedAt = nil
	next.CurrentOccurrence = r.CurrentOccurrence + 1
	next.CreatedAt = now
	return next.Touch(now)
}
