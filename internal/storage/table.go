package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type scanner interface {
	Scan(dest ...any) error
}

// tableSpec describes how one entity maps onto its SQLite table. columns
// must start with id, owner_id and end with last_modified, is_synced.
type tableSpec[T Entity] struct {
	name    string
	columns []string
	values  func(T) ([]any, error)
	scan    func(scanner) (T, error)
	orderBy string
}

// Table is a SQLite-backed Collection for a single entity kind.
type Table[T Entity] struct {
	db        *sql.DB
	spec      tableSpec[T]
	hub       *hub
	selectSQL string
	upsertSQL string
}

func newTable[T Entity](db *sql.DB, spec tableSpec[T]) *Table[T] {
	cols := strings.Join(spec.columns, ", ")
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(spec.columns)), ", ")
	sets := make([]string, 0, len(spec.columns)-1)
	for _, c := range spec.columns[1:] {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	return &Table[T]{
		db:        db,
		spec:      spec,
		hub:       newHub(),
		selectSQL: fmt.Sprintf("SELECT %s FROM %s", cols, spec.name),
		upsertSQL: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s",
			spec.name, cols, marks, strings.Join(sets, ", ")),
	}
}

func (t *Table[T]) Get(ctx context.Context, id string) (T, error) {
	row := t.db.QueryRowContext(ctx, t.selectSQL+` WHERE id = ?`, id)
	item, err := t.spec.scan(row)
	if err != nil {
		var zero T
		if errors.Is(err, sql.ErrNoRows) {
			return zero, ErrNotFound
		}
		return zero, err
	}
	return item, nil
}

func (t *Table[T]) Upsert(ctx context.Context, in T) error {
	args, err := t.spec.values(in)
	if err != nil {
		return fmt.Errorf("encode %s row: %w", t.spec.name, err)
	}
	if _, err := t.db.ExecContext(ctx, t.upsertSQL, args...); err != nil {
		return err
	}
	t.hub.publish()
	return nil
}

func (t *Table[T]) Delete(ctx context.Context, id string) error {
	res, err := t.db.ExecContext(ctx, `DELETE FROM `+t.spec.name+` WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := checkRowsAffected(res); err != nil {
		return err
	}
	t.hub.publish()
	return nil
}

func (t *Table[T]) MarkSynced(ctx context.Context, id string, version time.Time) (bool, error) {
	res, err := t.db.ExecContext(ctx,
		`UPDATE `+t.spec.name+` SET is_synced = 1 WHERE id = ? AND last_modified = ?`,
		id, mustTime(version))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		t.hub.publish()
	}
	return affected > 0, nil
}

func (t *Table[T]) Unsynced(ctx context.Context, ownerID string) ([]T, error) {
	return t.query(ctx, t.selectSQL+` WHERE owner_id = ? AND is_synced = 0 ORDER BY last_modified ASC`, ownerID)
}

func (t *Table[T]) List(ctx context.Context, ownerID string) ([]T, error) {
	return t.query(ctx, t.selectSQL+` WHERE owner_id = ? ORDER BY `+t.spec.orderBy, ownerID)
}

// Observe emits the owner's rows now and again after every write to the
// table. Slow readers only ever see the latest list. The channel closes
// when ctx is done.
func (t *Table[T]) Observe(ctx context.Context, ownerID string) (<-chan []T, error) {
	return observe(ctx, t.hub, func(ctx context.Context) ([]T, error) { return t.List(ctx, ownerID) })
}

func (t *Table[T]) query(ctx context.Context, query string, args ...any) ([]T, error) {
	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		item, scanErr := t.spec.scan(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func observe[T any](ctx context.Context, h *hub, load func(context.Context) ([]T, error)) (<-chan []T, error) {
	changes, unsubscribe := h.subscribe()
	first, err := load(ctx)
	if err != nil {
		unsubscribe()
		return nil, err
	}

	out := make(chan []T, 1)
	out <- first
	go func() {
		defer close(out)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
				list, err := load(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					continue
				}
				select {
				case <-out:
				default:
				}
				out <- list
			}
		}
	}()
	return out, nil
}

func nullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC().Format(sqliteTimeLayout)
}

func mustTime(v time.Time) string {
	return v.UTC().Format(sqliteTimeLayout)
}

func parseNullableTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	tm, err := time.Parse(sqliteTimeLayout, v.String)
	if err != nil {
		return nil, err
	}
	return &tm, nil
}

func parseRequiredTime(v string) (time.Time, error) {
	return time.Parse(sqliteTimeLayout, v)
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func applyPagination(args *[]any, limit, offset int) string {
	sql := ""
	if limit > 0 {
		sql += " LIMIT ?"
		*args = append(*args, limit)
	}
	if offset > 0 {
		if limit <= 0 {
			sql += " LIMIT -1"
		}
		sql += " OFFSET ?"
		*args = append(*args, offset)
	}
	return sql
}

func checkRowsAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
