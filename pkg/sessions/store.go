// Package sessions persists dialogue state. Turns within one session are
// serialized by a per-session mutex; a turn's writes land in a single
// transaction so a cancelled turn leaves no partial state.
package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/incipit-labs/folio-engine/migrations"
	"github.com/incipit-labs/folio-engine/pkg/apperrors"
	"github.com/incipit-labs/folio-engine/pkg/database"
	"github.com/incipit-labs/folio-engine/pkg/models"
)

// Store is the durable session store over its own SQLite database.
type Store struct {
	db     *sql.DB
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore migrates and wraps the sessions database.
func NewStore(db *sql.DB, logger *zap.Logger) (*Store, error) {
	if err := database.Migrate(db, migrations.FS, migrations.SessionsDir); err != nil {
		return nil, fmt.Errorf("migrate sessions db: %w", err)
	}
	return &Store{
		db:     db,
		logger: logger.Named("sessions"),
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Lock serializes turns for one session. The returned function releases
// the lock.
func (s *Store) Lock(sessionID string) func() {
	s.mu.Lock()
	m, ok := s.locks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[sessionID] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Create inserts a fresh session in the query-definition phase.
func (s *Store) Create(ctx context.Context) (*models.Session, error) {
	now := time.Now().UTC()
	sess := &models.Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Phase:     models.PhaseQueryDefinition,
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at, updated_at, phase) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.CreatedAt, sess.UpdatedAt, string(sess.Phase)); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Info("Session created", zap.String("session_id", sess.ID))
	return sess, nil
}

// Get loads a session with its full message history.
func (s *Store) Get(ctx context.Context, id string) (*models.Session, error) {
	sess := &models.Session{ID: id}
	var phase string
	var subgroup, goals, sessionCtx sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, updated_at, phase, active_subgroup, user_goals, context
		 FROM sessions WHERE id = ?`, id).
		Scan(&sess.CreatedAt, &sess.UpdatedAt, &phase, &subgroup, &goals, &sessionCtx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, apperrors.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	sess.Phase = models.SessionPhase(phase)
	if err := decodeJSONColumn(subgroup, &sess.ActiveSubgroup); err != nil {
		return nil, fmt.Errorf("decode active subgroup: %w", err)
	}
	if err := decodeJSONColumn(goals, &sess.UserGoals); err != nil {
		return nil, fmt.Errorf("decode goals: %w", err)
	}
	if err := decodeJSONColumn(sessionCtx, &sess.Context); err != nil {
		return nil, fmt.Errorf("decode context: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, query_plan, candidate_set, enrichment, created_at
		 FROM session_messages WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg models.ChatMessage
		var role string
		var plan, candidates, enrichment sql.NullString
		if err := rows.Scan(&role, &msg.Content, &plan, &candidates, &enrichment, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = models.MessageRole(role)
		if err := decodeJSONColumn(plan, &msg.QueryPlan); err != nil {
			return nil, fmt.Errorf("decode message plan: %w", err)
		}
		if err := decodeJSONColumn(candidates, &msg.CandidateSet); err != nil {
			return nil, fmt.Errorf("decode message candidates: %w", err)
		}
		if err := decodeJSONColumn(enrichment, &msg.Enrichment); err != nil {
			return nil, fmt.Errorf("decode message enrichment: %w", err)
		}
		sess.Messages = append(sess.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}

	return sess, nil
}

// ApplyTurn persists a completed turn: the new messages plus the session's
// updated phase, subgroup, goals and context, all in one transaction. On
// success the in-memory session is updated to match.
func (s *Store) ApplyTurn(ctx context.Context, sess *models.Session, newMessages ...models.ChatMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin turn: %w", err)
	}
	defer tx.Rollback()

	var seq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session_messages WHERE session_id = ?`, sess.ID).Scan(&seq); err != nil {
		return fmt.Errorf("message count: %w", err)
	}

	for i, msg := range newMessages {
		plan, err := encodeJSONColumn(msg.QueryPlan)
		if err != nil {
			return fmt.Errorf("encode plan: %w", err)
		}
		candidates, err := encodeJSONColumn(msg.CandidateSet)
		if err != nil {
			return fmt.Errorf("encode candidates: %w", err)
		}
		enrichment, err := encodeJSONColumn(msg.Enrichment)
		if err != nil {
			return fmt.Errorf("encode enrichment: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_messages (session_id, seq, role, content, query_plan, candidate_set, enrichment, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, seq+i, string(msg.Role), msg.Content, plan, candidates, enrichment, msg.Timestamp); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	now := time.Now().UTC()
	subgroup, err := encodeJSONColumn(sess.ActiveSubgroup)
	if err != nil {
		return fmt.Errorf("encode subgroup: %w", err)
	}
	goals, err := encodeJSONColumn(sess.UserGoals)
	if err != nil {
		return fmt.Errorf("encode goals: %w", err)
	}
	sessionCtx, err := encodeJSONColumn(sess.Context)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ?, phase = ?, active_subgroup = ?, user_goals = ?, context = ?
		 WHERE id = ?`,
		now, string(sess.Phase), subgroup, goals, sessionCtx, sess.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("session %s: %w", sess.ID, apperrors.ErrSessionNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit turn: %w", err)
	}

	sess.Messages = append(sess.Messages, newMessages...)
	sess.UpdatedAt = now
	return nil
}

// Delete removes a session and its messages.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("session %s: %w", id, apperrors.ErrSessionNotFound)
	}

	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()
	return nil
}

// DeleteExpired removes sessions idle since before the cutoff.
func (s *Store) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire sessions: %w", err)
	}
	if affected > 0 {
		s.logger.Info("Expired sessions", zap.Int64("count", affected))
	}
	return int(affected), nil
}

// Ping reports whether the backing database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func encodeJSONColumn(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, nil
	}
	return string(raw), nil
}

func decodeJSONColumn(col sql.NullString, dest any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dest)
}
