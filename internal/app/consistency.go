package app

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"trivia-live-service/internal/domain"
)

const (
	sessionKeyPrefix     = "session:"
	participantKeyPrefix = "participant:"
)

func sessionKey(id string) string     { return sessionKeyPrefix + id }
func participantKey(id string) string { return participantKeyPrefix + id }

// Coordinator keeps the cache and the durable store in agreement. Reads are
// cache-first with a durable fallback that repopulates the mirror; writes go
// durable-first, then cache. A crash between the two leaves the cache stale
// or absent, which the read path re-derives; the reverse order could leave
// the cache ahead of an unwritten durable state and is never used.
type Coordinator struct {
	store SessionStore
	cache Cache
	ttl   time.Duration
	log   *zap.Logger
}

func NewCoordinator(store SessionStore, cache Cache, ttl time.Duration, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{store: store, cache: cache, ttl: ttl, log: log}
}

// ReadSession resolves session state cache-first. Cache errors fail open to
// the durable store; only a miss in both is NotFound.
func (c *Coordinator) ReadSession(ctx context.Context, id string) (domain.Session, error) {
	raw, ok, err := c.cache.Get(ctx, sessionKey(id))
	if err != nil {
		c.log.Warn("session cache read failed, falling back to durable store",
			zap.String("session_id", id), zap.Error(err))
	} else if ok {
		var sess domain.Session
		if err := json.Unmarshal([]byte(raw), &sess); err == nil {
			return sess, nil
		}
		c.log.Warn("corrupt session cache entry", zap.String("session_id", id))
	}
	return c.Refresh(ctx, id)
}

// Refresh reads durable state and rewrites the cache mirror.
func (c *Coordinator) Refresh(ctx context.Context, id string) (domain.Session, error) {
	sess, err := c.store.GetSession(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	c.Mirror(ctx, sess)
	return sess, nil
}

// CreateSession persists durably, then mirrors.
func (c *Coordinator) CreateSession(ctx context.Context, sess domain.Session) error {
	if err := c.store.CreateSession(ctx, sess); err != nil {
		return err
	}
	c.Mirror(ctx, sess)
	return nil
}

// Transition performs the conditional durable update, then mirrors the
// winning state.
func (c *Coordinator) Transition(ctx context.Context, id string, from domain.SessionState, upd domain.SessionUpdate) (domain.Session, error) {
	sess, err := c.store.TransitionSession(ctx, id, from, upd)
	if err != nil {
		return domain.Session{}, err
	}
	c.Mirror(ctx, sess)
	return sess, nil
}

// Mirror writes the cache projection of sess. Failures are logged and
// swallowed: a stale or missing mirror is safe to re-derive.
func (c *Coordinator) Mirror(ctx context.Context, sess domain.Session) {
	raw, err := json.Marshal(sess)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, sessionKey(sess.ID), string(raw), c.ttl); err != nil {
		c.log.Warn("session cache write failed", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

// BindParticipant caches the participant-to-session binding for cheap
// preflight checks. Best effort; the durable participant row is the truth.
func (c *Coordinator) BindParticipant(ctx context.Context, participantID, sessionID string) {
	if err := c.cache.Set(ctx, participantKey(participantID), sessionID, c.ttl); err != nil {
		c.log.Warn("participant binding cache write failed",
			zap.String("participant_id", participantID), zap.Error(err))
	}
}

// ParticipantSession returns the cached session binding, if present.
func (c *Coordinator) ParticipantSession(ctx context.Context, participantID string) (string, bool) {
	sessionID, ok, err := c.cache.Get(ctx, participantKey(participantID))
	if err != nil || !ok {
		return "", false
	}
	return sessionID, true
}
