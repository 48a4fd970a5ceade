package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ovialab/admin-portal/internal/core/domain"
)

// SessionRepository stores session records in Redis.
// Key layout:
//
//	session:<session_id>      → JSON session record
//	session:user:<user_id>    → current session id for that user
//
// Store writes both keys and removes the record the user pointer previously
// referenced, which keeps the per-user lookup O(1). The write is pipelined,
// not transactional: replacement is best effort, same as the conflict check
// that precedes it.
type SessionRepository struct {
	client *redis.Client
}

// NewSessionRepository creates a SessionRepository wrapping the given client.
func NewSessionRepository(client *redis.Client) *SessionRepository {
	return &SessionRepository{client: client}
}

func (r *SessionRepository) Store(ctx context.Context, session *domain.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	prior, err := r.client.Get(ctx, userKey(session.UserID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("load prior session pointer: %w", err)
	}

	pipe := r.client.TxPipeline()
	if prior != "" && prior != session.SessionID {
		pipe.Del(ctx, sessionKey(prior))
	}
	pipe.Set(ctx, sessionKey(session.SessionID), payload, 0)
	pipe.Set(ctx, userKey(session.UserID), session.SessionID, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (r *SessionRepository) FindByID(ctx context.Context, sessionID string) (*domain.Session, error) {
	payload, err := r.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) FindByUser(ctx context.Context, userID string) (*domain.Session, error) {
	sessionID, err := r.client.Get(ctx, userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("find session pointer: %w", err)
	}

	session, err := r.FindByID(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		// Dangling pointer left by a partial delete; clean it up.
		_ = r.client.Del(ctx, userKey(userID)).Err()
		return nil, domain.ErrSessionNotFound
	}
	return session, err
}

func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	session, err := r.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil
		}
		return err
	}

	// Only drop the user pointer if it still references this session; a
	// replacement may already have repointed it.
	current, err := r.client.Get(ctx, userKey(session.UserID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("load session pointer: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, sessionKey(sessionID))
	if current == sessionID {
		pipe.Del(ctx, userKey(session.UserID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

func userKey(userID string) string {
	return "session:user:" + userID
}
