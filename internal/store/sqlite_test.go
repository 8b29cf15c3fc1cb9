package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailto/internal/model"
	"github.com/nhle/mailto/internal/store"
	"github.com/nhle/mailto/tests/testutil"
)

func TestRecordAndGetSnapshots(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	ex := model.Mailbox{Kind: model.KindExchange, Address: "alice@EXCHANGE.MIT.EDU", Enabled: true}
	ext := model.Mailbox{Kind: model.KindSMTP, Address: "alice@gmail.com", Enabled: true}

	first, err := s.RecordSnapshot(ctx, testutil.Snapshot("alice", model.ActionFetch, base, ex))
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	_, err = s.RecordSnapshot(ctx, testutil.Snapshot("alice", model.ActionUpdate, base.Add(time.Minute), ex, ext))
	require.NoError(t, err)
	_, err = s.RecordSnapshot(ctx, testutil.Snapshot("bob", model.ActionFetch, base))
	require.NoError(t, err)

	snaps, err := s.GetSnapshots(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	assert.Equal(t, model.ActionUpdate, snaps[0].Action, "newest first")
	assert.Equal(t, []model.Mailbox{ex, ext}, snaps[0].Status.Boxes)
	assert.Equal(t, "mailto", snaps[0].Status.ModWith)
	assert.True(t, snaps[0].RecordedAt.Equal(base.Add(time.Minute)))
	assert.Equal(t, first.ID, snaps[1].ID)

	limited, err := s.GetSnapshots(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	bob, err := s.GetSnapshots(ctx, "bob", 0)
	require.NoError(t, err)
	require.Len(t, bob, 1)
	assert.Empty(t, bob[0].Status.Boxes)
}

func TestPruneSnapshots(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		testutil.Seed(t, s, testutil.Snapshot("alice", model.ActionFetch, base.Add(time.Duration(i)*time.Minute)))
	}
	testutil.Seed(t, s, testutil.Snapshot("bob", model.ActionFetch, base))

	removed, err := s.PruneSnapshots(ctx, "alice", 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, removed)

	snaps, err := s.GetSnapshots(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.True(t, snaps[0].RecordedAt.Equal(base.Add(4*time.Minute)))

	bob, err := s.GetSnapshots(ctx, "bob", 0)
	require.NoError(t, err)
	assert.Len(t, bob, 1, "other users untouched")
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	ctx := context.Background()

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	_, err = s.RecordSnapshot(ctx, testutil.Snapshot("alice", model.ActionReset, time.Now()))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	snaps, err := s.GetSnapshots(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, model.ActionReset, snaps[0].Action)
}
