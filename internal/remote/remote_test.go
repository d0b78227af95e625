package remote

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func next(t *testing.T, ch <-chan []Document) []Document {
	t.Helper()
	select {
	case docs, ok := <-ch:
		require.True(t, ok, "stream closed")
		return docs
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestMemorySubscribeStreamsSnapshots(t *testing.T) {
	mem := NewMemory()
	mem.Seed(Document{Collection: CollectionReminders, OwnerID: "o1", ID: "b", Data: []byte(`{}`)})
	mem.Seed(Document{Collection: CollectionReminders, OwnerID: "o2", ID: "x", Data: []byte(`{}`)})

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := mem.Subscribe(ctx, CollectionReminders, "o1")
	require.NoError(t, err)

	first := next(t, stream)
	require.Len(t, first, 1)
	assert.Equal(t, "b", first[0].ID)

	require.NoError(t, mem.Put(ctx, Document{Collection: CollectionReminders, OwnerID: "o1", ID: "a", Data: []byte(`{"v":1}`)}))
	second := next(t, stream)
	require.Len(t, second, 2)
	assert.Equal(t, "a", second[0].ID, "snapshots are ordered by id")

	require.NoError(t, mem.Delete(ctx, CollectionReminders, "o1", "b"))
	third := next(t, stream)
	require.Len(t, third, 1)
	assert.Equal(t, 1, mem.Puts())
	assert.Equal(t, 1, mem.Deletes())

	cancel()
	for range stream {
	}
}

func TestMemoryLatestSnapshotWins(t *testing.T) {
	mem := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := mem.Subscribe(ctx, CollectionTags, "o1")
	require.NoError(t, err)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, mem.Put(ctx, Document{Collection: CollectionTags, OwnerID: "o1", ID: id, Data: []byte(`{}`)}))
	}
	docs := next(t, stream)
	assert.Len(t, docs, 3)
	select {
	case extra := <-stream:
		t.Fatalf("unexpected queued snapshot: %v", extra)
	default:
	}
}

func TestMemoryFailureInjection(t *testing.T) {
	mem := NewMemory()
	boom := errors.New("offline")
	mem.SetFailure(boom)

	err := mem.Put(context.Background(), Document{Collection: CollectionGroups, OwnerID: "o1", ID: "g"})
	assert.ErrorIs(t, err, boom)
	_, err = mem.Subscribe(context.Background(), CollectionGroups, "o1")
	assert.ErrorIs(t, err, boom)
	_, ok := mem.Get(CollectionGroups, "o1", "g")
	assert.False(t, ok)

	mem.SetFailure(nil)
	require.NoError(t, mem.Put(context.Background(), Document{Collection: CollectionGroups, OwnerID: "o1", ID: "g"}))
	_, ok = mem.Get(CollectionGroups, "o1", "g")
	assert.True(t, ok)
}

func TestFingerprintDetectsChanges(t *testing.T) {
	at := time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC)
	a := []Document{{ID: "1", Data: []byte(`{"a":1}`), UpdatedAt: at}}
	b := []Document{{ID: "1", Data: []byte(`{"a":2}`), UpdatedAt: at}}
	assert.Equal(t, fingerprint(a), fingerprint([]Document{{ID: "1", Data: []byte(`{"a":1}`), UpdatedAt: at}}))
	assert.NotEqual(t, fingerprint(a), fingerprint(b))
	assert.NotEqual(t, fingerprint(nil), fingerprint(a))
}

func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("REMINDD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("REMINDD_TEST_POSTGRES_DSN not set")
	}
	pg, err := OpenPostgres(dsn, PostgresOptions{PollInterval: 50 * time.Millisecond, Retries: 1})
	require.NoError(t, err)
	sqlDB, err := pg.db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	owner := "test-" + time.Now().Format("150405.000000000")
	stream, err := pg.Subscribe(ctx, CollectionReminders, owner)
	require.NoError(t, err)
	assert.Empty(t, next(t, stream))

	require.NoError(t, pg.Put(ctx, Document{Collection: CollectionReminders, OwnerID: owner, ID: "r1", Data: []byte(`{"title":"a"}`)}))
	require.NoError(t, pg.Put(ctx, Document{Collection: CollectionReminders, OwnerID: owner, ID: "r1", Data: []byte(`{"title":"b"}`)}))

	deadline := time.After(3 * time.Second)
	for {
		select {
		case docs := <-stream:
			if len(docs) == 1 && titleOf(docs[0].Data) == "b" {
				require.NoError(t, pg.Delete(ctx, CollectionReminders, owner, "r1"))
				cancel()
				for range stream {
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for upserted document")
		}
	}
}

func titleOf(data []byte) string {
	var v struct {
		Title string `json:"title"`
	}
	_ = json.Unmarshal(data, &v)
	return v.Title
}
