package memory

import (
	"context"
	"fmt"
	"sync"

	"trivia-live-service/internal/domain"
)

// Store is an in-memory implementation of the durable session store. It keeps
// the same contract as the Postgres store, including the atomic conditional
// transition and the one-answer-per-question guarantee, for tests and
// single-instance runs without a database.
type Store struct {
	mu           sync.RWMutex
	sessions     map[string]*domain.Session
	byJoinCode   map[string]string
	participants map[string]*domain.Participant
	bySession    map[string][]string
	answers      map[string]domain.Answer
}

func NewStore() *Store {
	return &Store{
		sessions:     make(map[string]*domain.Session),
		byJoinCode:   make(map[string]string),
		participants: make(map[string]*domain.Participant),
		bySession:    make(map[string][]string),
		answers:      make(map[string]domain.Answer),
	}
}

func (s *Store) CreateSession(_ context.Context, sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return fmt.Errorf("session %s already exists", sess.ID)
	}
	stored := sess
	s.sessions[sess.ID] = &stored
	s.byJoinCode[sess.JoinCode] = sess.ID
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionLocked(id)
}

func (s *Store) GetSessionByJoinCode(_ context.Context, code string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byJoinCode[code]
	if !ok {
		return domain.Session{}, fmt.Errorf("%w: join code %s", domain.ErrSessionNotFound, code)
	}
	return s.sessionLocked(id)
}

// TransitionSession applies upd only if the session is currently in the from
// state, mirroring the conditional UPDATE of the SQL store.
func (s *Store) TransitionSession(_ context.Context, id string, from domain.SessionState, upd domain.SessionUpdate) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	if sess.State != from {
		return domain.Session{}, domain.ErrStateConflict
	}
	sess.State = upd.State
	if upd.CurrentQuestionIndex != nil {
		sess.CurrentQuestionIndex = *upd.CurrentQuestionIndex
	}
	if upd.StartedAt != nil {
		sess.StartedAt = upd.StartedAt
	}
	if upd.EndedAt != nil {
		sess.EndedAt = upd.EndedAt
	}
	return s.copyLocked(sess), nil
}

func (s *Store) VoidQuestion(_ context.Context, sessionID, questionID string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	if !sess.QuestionVoided(questionID) {
		sess.VoidedQuestions = append(sess.VoidedQuestions, questionID)
	}
	return s.copyLocked(sess), nil
}

func (s *Store) CreateParticipant(_ context.Context, p domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[p.SessionID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, p.SessionID)
	}
	stored := p
	s.participants[p.ID] = &stored
	s.bySession[p.SessionID] = append(s.bySession[p.SessionID], p.ID)
	return nil
}

func (s *Store) GetParticipant(_ context.Context, id string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return domain.Participant{}, fmt.Errorf("%w: %s", domain.ErrParticipantNotFound, id)
	}
	return *p, nil
}

func (s *Store) ListParticipants(_ context.Context, sessionID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.bySession[sessionID]
	out := make([]domain.Participant, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.participants[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

// RecordAnswer appends the answer and folds its points into the participant
// aggregates in one critical section. A second answer for the same
// (participant, question) pair is rejected, never double-scored.
func (s *Store) RecordAnswer(_ context.Context, answer domain.Answer, newStreak int) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[answer.ParticipantID]
	if !ok {
		return domain.Participant{}, fmt.Errorf("%w: %s", domain.ErrParticipantNotFound, answer.ParticipantID)
	}
	key := answerKey(answer)
	if _, exists := s.answers[key]; exists {
		return domain.Participant{}, domain.ErrAnswerAlreadySubmitted
	}
	s.answers[key] = answer
	p.TotalScore += answer.PointsAwarded
	p.TotalTimeMs += answer.ResponseTimeMs
	p.StreakCount = newStreak
	return *p, nil
}

func (s *Store) SetParticipantFlags(_ context.Context, id string, flags domain.ParticipantFlags) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return domain.Participant{}, fmt.Errorf("%w: %s", domain.ErrParticipantNotFound, id)
	}
	if flags.IsActive != nil {
		p.IsActive = *flags.IsActive
	}
	if flags.IsEliminated != nil {
		p.IsEliminated = *flags.IsEliminated
	}
	if flags.IsSpectator != nil {
		p.IsSpectator = *flags.IsSpectator
	}
	if flags.IsBanned != nil {
		p.IsBanned = *flags.IsBanned
	}
	return *p, nil
}

func (s *Store) sessionLocked(id string) (domain.Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return s.copyLocked(sess), nil
}

func (s *Store) copyLocked(sess *domain.Session) domain.Session {
	out := *sess
	out.ParticipantCount = len(s.bySession[sess.ID])
	if len(sess.VoidedQuestions) > 0 {
		out.VoidedQuestions = append([]string(nil), sess.VoidedQuestions...)
	}
	return out
}

func answerKey(a domain.Answer) string {
	return a.SessionID + "|" + a.ParticipantID + "|" + a.QuestionID
}
