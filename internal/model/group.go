package model

import (
	"errors"
	"strings"
	"time"
)

// Group is a named bucket of reminders.
type Group struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Name         string    `json:"name"`
	Color        string    `json:"color,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	LastModified time.Time `json:"lastModified"`
	IsSynced     bool      `json:"-"`
}

func (g Group) Validate() error {
	if strings.TrimSpace(g.ID) == "" {
		return errors.New("model: group id is required")
	}
	if strings.TrimSpace(g.OwnerID) == "" {
		return errors.New("model: group owner_id is required")
	}
	if strings.TrimSpace(g.Name) == "" {
		return errors.New("model: group name is required")
	}
	return nil
}

func (g Group) Key() string         { return g.ID }
func (g Group) Modified() time.Time { return g.LastModified }
func (g Group) Synced() bool        { return g.IsSynced }
func (g Group) Owner() string       { return g.OwnerID }

func (g Group) WithSynced(v bool) Group {
	g.IsSynced = v
	return g
}

func (g Group) Touch(now time.Time) Group {
	g.LastModified = now
	g.IsSynced = false
	return g
}

// Tag is a free-form label; a reminder carries any number of them.
type Tag struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Name         string    `json:"name"`
	Color        string    `json:"color,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	LastModified time.Time `json:"lastModified"`
	IsSynced     bool      `json:"-"`
}

func (t Tag) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("model: tag id is required")
	}
	if strings.TrimSpace(t.OwnerID) == "" {
		return errors.New("model: tag owner_id is required")
	}
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("model: tag name is required")
	}
	return nil
}

func (t Tag) Key() string         { return t.ID }
func (t Tag) Modified() time.Time { return t.LastModified }
func (t Tag) Synced() bool        { return t.IsSynced }
func (t Tag) Owner() string       { return t.OwnerID }

func (t Tag) WithSynced(v bool) Tag {
	t.IsSynced = v
	return t
}

func (t Tag) Touch(now time.Time) Tag {
	t.LastModified = now
	t.IsSynced = false
	return t
}
