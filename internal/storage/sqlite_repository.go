package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sandeepkv93/remindd/internal/model"
)

const sqliteTimeLayout = time.RFC3339Nano

// SQLiteStore is the on-device store for reminders, groups and tags.
type SQLiteStore struct {
	db        *sql.DB
	reminders *ReminderTable
	groups    *Table[model.Group]
	tags      *Table[model.Tag]
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	// Observers and writers share one connection so writes never race
	// for the database lock.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &SQLiteStore{
		db:        db,
		reminders: &ReminderTable{Table: newTable(db, reminderSpec)},
		groups:    newTable(db, groupSpec),
		tags:      newTable(db, tagSpec),
	}, nil
}

// OpenSQLite opens path and applies migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := MigrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Reminders() *ReminderTable   { return s.reminders }
func (s *SQLiteStore) Groups() *Table[model.Group] { return s.groups }
func (s *SQLiteStore) Tags() *Table[model.Tag]     { return s.tags }

// ReminderTable adds status, group and tag filtering on top of Table.
type ReminderTable struct {
	*Table[model.Reminder]
}

func (t *ReminderTable) Find(ctx context.Context, filter ReminderFilter) ([]model.Reminder, error) {
	query := t.selectSQL
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 6)
	if filter.OwnerID != "" {
		clauses = append(clauses, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if len(filter.Statuses) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(filter.Statuses)), ", ")
		clauses = append(clauses, "status IN ("+marks+")")
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	if filter.GroupID != "" {
		clauses = append(clauses, "group_id = ?")
		args = append(args, filter.GroupID)
	}
	if filter.TagID != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM json_each(reminders.tag_ids) WHERE json_each.value = ?)")
		args = append(args, filter.TagID)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY ` + t.spec.orderBy
	query += applyPagination(&args, filter.Limit, filter.Offset)
	return t.query(ctx, query, args...)
}

// Pending lists ACTIVE and SNOOZED reminders for ownerID.
func (t *ReminderTable) Pending(ctx context.Context, ownerID string) ([]model.Reminder, error) {
	return t.Find(ctx, ReminderFilter{
		OwnerID:  ownerID,
		Statuses: []model.Status{model.StatusActive, model.StatusSnoozed},
	})
}

// ObserveFiltered is Observe restricted by filter.
func (t *ReminderTable) ObserveFiltered(ctx context.Context, filter ReminderFilter) (<-chan []model.Reminder, error) {
	return observe(ctx, t.hub, func(ctx context.Context) ([]model.Reminder, error) { return t.Find(ctx, filter) })
}

var reminderSpec = tableSpec[model.Reminder]{
	name: "reminders",
	columns: []string{
		"id", "owner_id", "title", "description", "due_time", "reminder_time", "deadline",
		"status", "priority", "recurrence", "snooze_until", "target_occurrences",
		"current_occurrence", "group_id", "tag_ids", "created_at", "completed_at",
		"last_modified", "is_synced",
	},
	values:  reminderValues,
	scan:    scanReminder,
	orderBy: "due_time ASC, id ASC",
}

func reminderValues(in model.Reminder) ([]any, error) {
	var recurrence any
	if in.Recurrence != nil {
		raw, err := json.Marshal(in.Recurrence)
		if err != nil {
			return nil, err
		}
		recurrence = string(raw)
	}
	tags := in.TagIDs
	if tags == nil {
		tags = []string{}
	}
	tagsRaw, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	var target any
	if in.TargetOccurrences != nil {
		target = *in.TargetOccurrences
	}
	var group any
	if in.GroupID != "" {
		group = in.GroupID
	}
	return []any{
		in.ID, in.OwnerID, in.Title, in.Description, mustTime(in.DueTime),
		nullTime(in.ReminderTime), nullTime(in.Deadline), string(in.Status), string(in.Priority),
		recurrence, nullTime(in.SnoozeUntil), target, in.CurrentOccurrence, group,
		string(tagsRaw), mustTime(in.CreatedAt), nullTime(in.CompletedAt),
		mustTime(in.LastModified), boolInt(in.IsSynced),
	}, nil
}

func scanReminder(s scanner) (model.Reminder, error) {
	var out model.Reminder
	var (
		due, created, modified                  string
		reminderAt, deadline, snooze, completed sql.NullString
		status, priority, tags                  string
		recurrence, group                       sql.NullString
		target                                  sql.NullInt64
		synced                                  int
	)
	if err := s.Scan(
		&out.ID, &out.OwnerID, &out.Title, &out.Description, &due, &reminderAt, &deadline,
		&status, &priority, &recurrence, &snooze, &target,
		&out.CurrentOccurrence, &group, &tags, &created, &completed,
		&modified, &synced,
	); err != nil {
		return model.Reminder{}, err
	}

	var err error
	if out.DueTime, err = parseRequiredTime(due); err != nil {
		return model.Reminder{}, err
	}
	if out.CreatedAt, err = parseRequiredTime(created); err != nil {
		return model.Reminder{}, err
	}
	if out.LastModified, err = parseRequiredTime(modified); err != nil {
		return model.Reminder{}, err
	}
	if out.ReminderTime, err = parseNullableTime(reminderAt); err != nil {
		return model.Reminder{}, err
	}
	if out.Deadline, err = parseNullableTime(deadline); err != nil {
		return model.Reminder{}, err
	}
	if out.SnoozeUntil, err = parseNullableTime(snooze); err != nil {
		return model.Reminder{}, err
	}
	if out.CompletedAt, err = parseNullableTime(completed); err != nil {
		return model.Reminder{}, err
	}

	out.Status = model.Status(status)
	out.Priority = model.Priority(priority)
	if recurrence.Valid {
		out.Recurrence = model.DecodeRecurrence([]byte(recurrence.String))
	}
	if target.Valid {
		v := int(target.Int64)
		out.TargetOccurrences = &v
	}
	out.GroupID = group.String
	if tags != "" {
		// A damaged tag list should not hide the reminder.
		if json.Unmarshal([]byte(tags), &out.TagIDs) != nil {
			out.TagIDs = nil
		}
	}
	if len(out.TagIDs) == 0 {
		out.TagIDs = nil
	}
	out.IsSynced = synced == 1
	return out, nil
}

var groupSpec = tableSpec[model.Group]{
	name:    "reminder_groups",
	columns: []string{"id", "owner_id", "name", "color", "created_at", "last_modified", "is_synced"},
	values: func(in model.Group) ([]any, error) {
		return []any{in.ID, in.OwnerID, in.Name, in.Color, mustTime(in.CreatedAt), mustTime(in.LastModified), boolInt(in.IsSynced)}, nil
	},
	scan: func(s scanner) (model.Group, error) {
		var out model.Group
		var created, modified string
		var synced int
		if err := s.Scan(&out.ID, &out.OwnerID, &out.Name, &out.Color, &created, &modified, &synced); err != nil {
			return model.Group{}, err
		}
		var err error
		if out.CreatedAt, err = parseRequiredTime(created); err != nil {
			return model.Group{}, err
		}
		if out.LastModified, err = parseRequiredTime(modified); err != nil {
			return model.Group{}, err
		}
		out.IsSynced = synced == 1
		return out, nil
	},
	orderBy: "name ASC, id ASC",
}

var tagSpec = tableSpec[model.Tag]{
	name:    "tags",
	columns: []string{"id", "owner_id", "name", "color", "created_at", "last_modified", "is_synced"},
	values: func(in model.Tag) ([]any, error) {
		return []any{in.ID, in.OwnerID, in.Name, in.Color, mustTime(in.CreatedAt), mustTime(in.LastModified), boolInt(in.IsSynced)}, nil
	},
	scan: func(s scanner) (model.Tag, error) {
		var out model.Tag
		var created, modified string
		var synced int
		if err := s.Scan(&out.ID, &out.OwnerID, &out.Name, &out.Color, &created, &modified, &synced); err != nil {
			return model.Tag{}, err
		}
		var err error
		if out.CreatedAt, err = parseRequiredTime(created); err != nil {
			return model.Tag{}, err
		}
		if out.LastModified, err = parseRequiredTime(modified); err != nil {
			return model.Tag{}, err
		}
		out.IsSynced = synced == 1
		return out, nil
	},
	orderBy: "name ASC, id ASC",
}
