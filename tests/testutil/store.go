package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/nhle/mailto/internal/model"
	"github.com/nhle/mailto/internal/store"
)

// NewTestStore opens an in-memory history store with migrations applied and
// closes it when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("opening history store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing history store: %v", err)
		}
	})

	return s
}

// Snapshot builds a snapshot of user's mailboxes recorded at at.
func Snapshot(user string, action model.Action, at time.Time, boxes ...model.Mailbox) model.Snapshot {
	return model.Snapshot{
		Username: user,
		Action:   action,
		Status: model.Status{
			ModTime: "2014-03-02T17:04:05",
			ModBy:   user,
			ModWith: "mailto",
			Boxes:   boxes,
		},
		RecordedAt: at,
	}
}

// Seed records snaps in order and fails the test on the first error.
func Seed(t *testing.T, s store.Store, snaps ...model.Snapshot) {
	t.Helper()

	for _, snap := range snaps {
		if _, err := s.RecordSnapshot(context.Background(), snap); err != nil {
			t.Fatalf("seeding snapshot: %v", err)
		}
	}
}
