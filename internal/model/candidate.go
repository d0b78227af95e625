package model

import "time"

// Candidate is the single notification the scheduler should arm next.
// It is recomputed on demand and never persisted.
type Candidate struct {
	ReminderID    string    `json:"reminderId"`
	TriggerTime   time.Time `json:"triggerTime"`
	IsPreReminder bool      `json:"isPreReminder"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
}
