package sessions

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/incipit-labs/folio-engine/pkg/apperrors"
	"github.com/incipit-labs/folio-engine/pkg/database"
	"github.com/incipit-labs/folio-engine/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db, zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, models.PhaseQueryDefinition, sess.Phase)

	loaded, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Empty(t, loaded.Messages)
}

func TestGetUnknownSession(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestApplyTurnPersistsMessagesAndState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)

	plan := &models.QueryPlan{
		Version: models.QueryPlanVersion,
		Filters: []models.Filter{{Field: models.FieldPlace, Op: models.OpEQ, Value: "paris"}},
	}
	cs := &models.CandidateSet{QueryPlan: plan, TotalCount: 3}
	sess.Phase = models.PhaseCorpusExploration
	sess.ActiveSubgroup = &models.ActiveSubgroup{
		CandidateSet:  cs,
		DefiningQuery: "books printed in paris",
		FilterSummary: "place=paris",
		CreatedAt:     time.Now().UTC(),
	}
	sess.UserGoals = []models.Goal{{Text: "survey Parisian printing", CreatedAt: time.Now().UTC()}}

	now := time.Now().UTC()
	err = store.ApplyTurn(ctx, sess,
		models.ChatMessage{Role: models.RoleUser, Content: "books printed in paris", Timestamp: now},
		models.ChatMessage{Role: models.RoleAssistant, Content: "Found 3 records.", QueryPlan: plan, CandidateSet: cs, Timestamp: now},
	)
	require.NoError(t, err)

	loaded, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, models.RoleUser, loaded.Messages[0].Role)
	assert.Equal(t, models.RoleAssistant, loaded.Messages[1].Role)
	require.NotNil(t, loaded.Messages[1].QueryPlan)
	assert.Equal(t, "paris", loaded.Messages[1].QueryPlan.Filters[0].Value)
	assert.Equal(t, models.PhaseCorpusExploration, loaded.Phase)
	require.NotNil(t, loaded.ActiveSubgroup)
	assert.Equal(t, "place=paris", loaded.ActiveSubgroup.FilterSummary)
	require.Len(t, loaded.UserGoals, 1)
}

func TestApplyTurnPreservesMessageOrderAcrossTurns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.ApplyTurn(ctx, sess,
			models.ChatMessage{Role: models.RoleUser, Content: "turn", Timestamp: time.Now().UTC()},
			models.ChatMessage{Role: models.RoleAssistant, Content: "reply", Timestamp: time.Now().UTC()},
		))
	}

	loaded, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 6)
	for i, msg := range loaded.Messages {
		if i%2 == 0 {
			assert.Equal(t, models.RoleUser, msg.Role)
		} else {
			assert.Equal(t, models.RoleAssistant, msg.Role)
		}
	}
}

func TestApplyTurnUnknownSession(t *testing.T) {
	store := newTestStore(t)
	ghost := &models.Session{ID: "ghost", Phase: models.PhaseQueryDefinition}
	err := store.ApplyTurn(context.Background(), ghost,
		models.ChatMessage{Role: models.RoleUser, Content: "hi", Timestamp: time.Now().UTC()})
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, sess.ID))

	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)

	assert.ErrorIs(t, store.Delete(ctx, sess.ID), apperrors.ErrSessionNotFound)
}

func TestDeleteExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old, err := store.Create(ctx)
	require.NoError(t, err)
	fresh, err := store.Create(ctx)
	require.NoError(t, err)

	_, err = store.db.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-48*time.Hour), old.ID)
	require.NoError(t, err)

	n, err := store.DeleteExpired(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.Get(ctx, old.ID)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	_, err = store.Get(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestLockSerializesTurns(t *testing.T) {
	store := newTestStore(t)
	sess, err := store.Create(context.Background())
	require.NoError(t, err)

	var mu sync.Mutex
	inCritical := 0
	maxInCritical := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := store.Lock(sess.ID)
			defer unlock()

			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inCritical--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInCritical)
}
