package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trivia-live-service/internal/contentfilter"
	"trivia-live-service/internal/domain"
	"trivia-live-service/internal/joincode"
	"trivia-live-service/internal/ratelimit"
	"trivia-live-service/internal/token"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// SessionStore is the durable source of truth for sessions, participants,
// and answers (in-memory, Postgres, etc).
type SessionStore interface {
	CreateSession(ctx context.Context, sess domain.Session) error
	GetSession(ctx context.Context, id string) (domain.Session, error)
	GetSessionByJoinCode(ctx context.Context, code string) (domain.Session, error)
	// TransitionSession applies upd only if the session is currently in the
	// from state, as a single atomic conditional update. It returns
	// domain.ErrStateConflict when another writer won the edge.
	TransitionSession(ctx context.Context, id string, from domain.SessionState, upd domain.SessionUpdate) (domain.Session, error)
	VoidQuestion(ctx context.Context, sessionID, questionID string) (domain.Session, error)
	CreateParticipant(ctx context.Context, p domain.Participant) error
	GetParticipant(ctx context.Context, id string) (domain.Participant, error)
	ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error)
	// RecordAnswer stores the immutable answer and folds its points into the
	// participant aggregates atomically; a duplicate (participant, question)
	// pair yields domain.ErrAnswerAlreadySubmitted.
	RecordAnswer(ctx context.Context, answer domain.Answer, newStreak int) (domain.Participant, error)
	SetParticipantFlags(ctx context.Context, id string, flags domain.ParticipantFlags) (domain.Participant, error)
}

// Cache is the shared keyed cache. All cross-instance counters (join codes,
// rate-limit windows) and the session-state mirror live here.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	Exists(ctx context.Context, key string) (bool, error)
}

const joinAction = "join"

// Config carries the orchestration knobs.
type Config struct {
	// SessionTTL bounds cache mirrors and join-code reservations. Defaults
	// to six hours.
	SessionTTL time.Duration
	// JoinLimit / JoinWindow configure the join rate limiter.
	JoinLimit  int
	JoinWindow time.Duration
	Scoring    ScoringRules
}

// Service contains the live session use cases: lifecycle, admission,
// answering, and leaderboards.
type Service struct {
	quizzes QuizRepository
	store   SessionStore
	coord   *Coordinator
	codes   *joincode.Allocator
	limiter *ratelimit.Limiter
	tokens  *token.Issuer
	filter  contentfilter.Filter
	rules   ScoringRules
	hub     *Hub
	log     *zap.Logger
	now     func() time.Time
}

func NewService(store SessionStore, cache Cache, quizzes QuizRepository, tokens *token.Issuer, filter contentfilter.Filter, cfg Config, log *zap.Logger) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 6 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		quizzes: quizzes,
		store:   store,
		coord:   NewCoordinator(store, cache, cfg.SessionTTL, log),
		codes:   joincode.NewAllocator(cache, cfg.SessionTTL),
		limiter: ratelimit.New(cache, cfg.JoinLimit, cfg.JoinWindow),
		tokens:  tokens,
		filter:  filter,
		rules:   cfg.Scoring.withDefaults(),
		hub:     NewHub(),
		log:     log,
		now:     time.Now,
	}
}

// CreateSession reserves a join code, persists a new LOBBY session, and
// mirrors it into the cache.
func (s *Service) CreateSession(ctx context.Context, quizID string) (domain.Session, error) {
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return domain.Session{}, err
	}

	id := uuid.NewString()
	code, err := s.codes.Allocate(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}

	sess := domain.Session{
		ID:        id,
		QuizID:    quizID,
		JoinCode:  code,
		State:     domain.StateLobby,
		CreatedAt: s.now(),
	}
	if err := s.coord.CreateSession(ctx, sess); err != nil {
		return domain.Session{}, err
	}

	s.log.Info("session created",
		zap.String("session_id", id),
		zap.String("quiz_id", quizID),
		zap.String("join_code", code))
	return sess, nil
}

// Start moves a LOBBY session to its first question.
func (s *Service) Start(ctx context.Context, sessionID string) (domain.Session, error) {
	cur, err := s.coord.ReadSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if cur.State != domain.StateLobby {
		return domain.Session{}, &domain.InvalidStateError{Op: "start", Current: cur.State, Required: domain.StateLobby}
	}

	idx := 0
	startedAt := s.now()
	sess, err := s.coord.Transition(ctx, sessionID, domain.StateLobby, domain.SessionUpdate{
		State:                domain.StateActiveQuestion,
		CurrentQuestionIndex: &idx,
		StartedAt:            &startedAt,
	})
	if errors.Is(err, domain.ErrStateConflict) {
		return domain.Session{}, s.conflictError(ctx, sessionID, "start", domain.StateLobby)
	}
	if err != nil {
		return domain.Session{}, err
	}

	s.publishState(sess)
	return sess, nil
}

// AdvanceToReveal closes the current question.
func (s *Service) AdvanceToReveal(ctx context.Context, sessionID string) (domain.Session, error) {
	cur, err := s.coord.ReadSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if cur.State != domain.StateActiveQuestion {
		return domain.Session{}, &domain.InvalidStateError{Op: "reveal", Current: cur.State, Required: domain.StateActiveQuestion}
	}

	sess, err := s.coord.Transition(ctx, sessionID, domain.StateActiveQuestion, domain.SessionUpdate{State: domain.StateReveal})
	if errors.Is(err, domain.ErrStateConflict) {
		return domain.Session{}, s.conflictError(ctx, sessionID, "reveal", domain.StateActiveQuestion)
	}
	if err != nil {
		return domain.Session{}, err
	}

	s.publishState(sess)
	return sess, nil
}

// AdvanceToNextQuestion moves a revealed session to the next question, or to
// ENDED when the quiz has no further questions.
func (s *Service) AdvanceToNextQuestion(ctx context.Context, sessionID string) (domain.Session, error) {
	cur, err := s.coord.ReadSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if cur.State != domain.StateReveal {
		return domain.Session{}, &domain.InvalidStateError{Op: "advance", Current: cur.State, Required: domain.StateReveal}
	}

	quiz, err := s.quizzes.GetQuiz(ctx, cur.QuizID)
	if err != nil {
		return domain.Session{}, err
	}

	next := cur.CurrentQuestionIndex + 1
	var upd domain.SessionUpdate
	if next >= len(quiz.Questions) {
		endedAt := s.now()
		upd = domain.SessionUpdate{State: domain.StateEnded, EndedAt: &endedAt}
	} else {
		upd = domain.SessionUpdate{State: domain.StateActiveQuestion, CurrentQuestionIndex: &next}
	}

	sess, err := s.coord.Transition(ctx, sessionID, domain.StateReveal, upd)
	if errors.Is(err, domain.ErrStateConflict) {
		return domain.Session{}, s.conflictError(ctx, sessionID, "advance", domain.StateReveal)
	}
	if err != nil {
		return domain.Session{}, err
	}

	s.publishState(sess)
	return sess, nil
}

// End terminates the session from any non-ENDED state and returns the final
// results. Ending twice reports "Quiz has already ended.".
func (s *Service) End(ctx context.Context, sessionID string) (domain.SessionResults, error) {
	read := s.coord.ReadSession
	for attempt := 0; attempt < 3; attempt++ {
		cur, err := read(ctx, sessionID)
		if err != nil {
			return domain.SessionResults{}, err
		}
		if cur.State == domain.StateEnded {
			return domain.SessionResults{}, &domain.InvalidStateError{Op: "end", Current: domain.StateEnded}
		}

		endedAt := s.now()
		sess, err := s.coord.Transition(ctx, sessionID, cur.State, domain.SessionUpdate{
			State:   domain.StateEnded,
			EndedAt: &endedAt,
		})
		if errors.Is(err, domain.ErrStateConflict) {
			// Lost a race against another transition; re-read durably.
			read = s.coord.Refresh
			continue
		}
		if err != nil {
			return domain.SessionResults{}, err
		}

		results, err := s.results(ctx, sess)
		if err != nil {
			return domain.SessionResults{}, err
		}
		s.hub.Publish(Event{Type: EventSessionEnded, SessionID: sessionID, Payload: results})
		s.log.Info("session ended", zap.String("session_id", sessionID))
		return results, nil
	}
	return domain.SessionResults{}, domain.ErrStateConflict
}

// GetState returns the full read-model for a session.
func (s *Service) GetState(ctx context.Context, sessionID string) (domain.SessionView, error) {
	sess, err := s.coord.ReadSession(ctx, sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, sess.QuizID)
	if err != nil {
		return domain.SessionView{}, err
	}
	participants, err := s.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	return domain.SessionView{Session: sess, Quiz: quiz, Participants: participants}, nil
}

// Join admits a participant: rate limit, code resolution, nickname
// validation, spectator determination, then persistence and token issue.
func (s *Service) Join(ctx context.Context, code, nickname, clientID string) (domain.JoinResult, error) {
	decision, err := s.limiter.Check(ctx, joinAction, clientID)
	if err != nil {
		// Fail closed: an unreadable limiter must not mean unlimited joins.
		return domain.JoinResult{}, err
	}
	if !decision.Allowed {
		return domain.JoinResult{}, &domain.RateLimitedError{Action: joinAction, RetryAfterSeconds: decision.RetryAfterSeconds}
	}

	if !joincode.ValidFormat(code) {
		return domain.JoinResult{}, &domain.JoinCodeError{Code: code, Malformed: true}
	}

	sessionID, found, err := s.codes.Resolve(ctx, code)
	if err != nil {
		s.log.Warn("join code cache read failed, falling back to durable store",
			zap.String("join_code", code), zap.Error(err))
		found = false
	}
	if !found {
		sess, err := s.store.GetSessionByJoinCode(ctx, code)
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.JoinResult{}, &domain.JoinCodeError{Code: code}
		}
		if err != nil {
			return domain.JoinResult{}, err
		}
		sessionID = sess.ID
		if err := s.codes.Remember(ctx, code, sessionID); err != nil {
			s.log.Warn("join code repopulation failed", zap.String("join_code", code), zap.Error(err))
		}
	}

	nick, err := validateNickname(nickname, s.filter)
	if err != nil {
		return domain.JoinResult{}, err
	}

	cur, err := s.coord.ReadSession(ctx, sessionID)
	if err != nil {
		return domain.JoinResult{}, err
	}
	if cur.State == domain.StateEnded {
		return domain.JoinResult{}, domain.ErrSessionEnded
	}

	p := domain.Participant{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Nickname:    nick,
		JoinedAt:    s.now(),
		IsActive:    true,
		IsSpectator: cur.State != domain.StateLobby,
	}
	if err := s.store.CreateParticipant(ctx, p); err != nil {
		return domain.JoinResult{}, err
	}
	s.coord.BindParticipant(ctx, p.ID, sessionID)
	if _, err := s.coord.Refresh(ctx, sessionID); err != nil {
		s.log.Warn("session refresh after join failed", zap.String("session_id", sessionID), zap.Error(err))
	}

	tok, err := s.tokens.Issue(p.ID, sessionID, nick)
	if err != nil {
		return domain.JoinResult{}, err
	}

	s.hub.Publish(Event{Type: EventParticipantJoined, SessionID: sessionID, Payload: p})
	s.publishLeaderboard(ctx, sessionID)

	s.log.Info("participant joined",
		zap.String("session_id", sessionID),
		zap.String("participant_id", p.ID),
		zap.Bool("spectator", p.IsSpectator))
	return domain.JoinResult{
		ParticipantID: p.ID,
		SessionID:     sessionID,
		SessionToken:  tok,
		Nickname:      nick,
		IsSpectator:   p.IsSpectator,
	}, nil
}

// SubmitAnswer scores one answer and updates the participant aggregates.
func (s *Service) SubmitAnswer(ctx context.Context, sessionID, participantID, questionID string, selectedOptions []string, responseTimeMs int64) (domain.AnswerOutcome, error) {
	if bound, ok := s.coord.ParticipantSession(ctx, participantID); ok && bound != sessionID {
		return domain.AnswerOutcome{}, fmt.Errorf("%w: %s", domain.ErrParticipantNotFound, participantID)
	}

	sess, err := s.coord.ReadSession(ctx, sessionID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	if sess.State != domain.StateActiveQuestion {
		return domain.AnswerOutcome{}, &domain.InvalidStateError{Op: "answer", Current: sess.State, Required: domain.StateActiveQuestion}
	}

	quiz, err := s.quizzes.GetQuiz(ctx, sess.QuizID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	question, ok := quiz.Question(questionID)
	if !ok {
		return domain.AnswerOutcome{}, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, questionID)
	}

	p, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	if p.SessionID != sessionID {
		return domain.AnswerOutcome{}, fmt.Errorf("%w: %s", domain.ErrParticipantNotFound, participantID)
	}
	if p.IsBanned {
		return domain.AnswerOutcome{}, domain.ErrParticipantBanned
	}
	if p.IsSpectator {
		return domain.AnswerOutcome{}, domain.ErrSpectator
	}

	outcome, newStreak := scoreAnswer(question, selectedOptions, responseTimeMs, p.StreakCount, s.rules)
	if sess.QuestionVoided(questionID) {
		// Voided questions record a zero-point answer and leave the streak alone.
		outcome = domain.AnswerOutcome{QuestionID: questionID}
		newStreak = p.StreakCount
	}

	answer := domain.Answer{
		SessionID:            sessionID,
		ParticipantID:        participantID,
		QuestionID:           questionID,
		SelectedOptions:      selectedOptions,
		ResponseTimeMs:       responseTimeMs,
		IsCorrect:            outcome.IsCorrect,
		PointsAwarded:        outcome.PointsAwarded,
		SpeedBonusApplied:    outcome.SpeedBonus > 0,
		StreakBonusApplied:   outcome.StreakBonus > 0,
		PartialCreditApplied: outcome.PartialCredit,
		SubmittedAt:          s.now(),
	}
	updated, err := s.store.RecordAnswer(ctx, answer, newStreak)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	outcome.TotalScore = updated.TotalScore
	outcome.Streak = updated.StreakCount

	s.publishLeaderboard(ctx, sessionID)
	return outcome, nil
}

// Leaderboard returns the current ranking. With activeOnly, inactive
// participants are excluded entirely.
func (s *Service) Leaderboard(ctx context.Context, sessionID string, activeOnly bool) (domain.Leaderboard, error) {
	if _, err := s.coord.ReadSession(ctx, sessionID); err != nil {
		return domain.Leaderboard{}, err
	}
	participants, err := s.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return buildLeaderboard(sessionID, participants, activeOnly, s.now()), nil
}

// GetResults returns the final leaderboard and aggregate statistics.
func (s *Service) GetResults(ctx context.Context, sessionID string) (domain.SessionResults, error) {
	sess, err := s.coord.ReadSession(ctx, sessionID)
	if err != nil {
		return domain.SessionResults{}, err
	}
	return s.results(ctx, sess)
}

// EliminateParticipant flags a participant out of play; they keep watching
// as a spectator.
func (s *Service) EliminateParticipant(ctx context.Context, sessionID, participantID string) (domain.Participant, error) {
	p, err := s.participantInSession(ctx, sessionID, participantID)
	if err != nil {
		return domain.Participant{}, err
	}
	yes := true
	updated, err := s.store.SetParticipantFlags(ctx, p.ID, domain.ParticipantFlags{IsEliminated: &yes, IsSpectator: &yes})
	if err != nil {
		return domain.Participant{}, err
	}
	s.publishLeaderboard(ctx, sessionID)
	return updated, nil
}

// BanParticipant removes a participant from play and from final results.
func (s *Service) BanParticipant(ctx context.Context, sessionID, participantID string) (domain.Participant, error) {
	p, err := s.participantInSession(ctx, sessionID, participantID)
	if err != nil {
		return domain.Participant{}, err
	}
	yes, no := true, false
	updated, err := s.store.SetParticipantFlags(ctx, p.ID, domain.ParticipantFlags{IsBanned: &yes, IsActive: &no})
	if err != nil {
		return domain.Participant{}, err
	}
	s.publishLeaderboard(ctx, sessionID)
	return updated, nil
}

// VoidQuestion marks a question so submissions against it score zero.
func (s *Service) VoidQuestion(ctx context.Context, sessionID, questionID string) (domain.Session, error) {
	cur, err := s.coord.ReadSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, cur.QuizID)
	if err != nil {
		return domain.Session{}, err
	}
	if _, ok := quiz.Question(questionID); !ok {
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, questionID)
	}

	sess, err := s.store.VoidQuestion(ctx, sessionID, questionID)
	if err != nil {
		return domain.Session{}, err
	}
	s.coord.Mirror(ctx, sess)
	s.hub.Publish(Event{Type: EventQuestionVoided, SessionID: sessionID, Payload: questionID})
	return sess, nil
}

// Subscribe returns a channel receiving session events for the push layer.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Service) Subscribe(ctx context.Context, sessionID string) (<-chan Event, func(), error) {
	if _, err := s.coord.ReadSession(ctx, sessionID); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.Subscribe(sessionID)
	return ch, cancel, nil
}

func (s *Service) results(ctx context.Context, sess domain.Session) (domain.SessionResults, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, sess.QuizID)
	if err != nil {
		return domain.SessionResults{}, err
	}
	participants, err := s.store.ListParticipants(ctx, sess.ID)
	if err != nil {
		return domain.SessionResults{}, err
	}
	return domain.SessionResults{
		Leaderboard: buildLeaderboard(sess.ID, participants, true, s.now()),
		Statistics:  buildStatistics(participants, len(quiz.Questions)),
	}, nil
}

func (s *Service) participantInSession(ctx context.Context, sessionID, participantID string) (domain.Participant, error) {
	p, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return domain.Participant{}, err
	}
	if p.SessionID != sessionID {
		return domain.Participant{}, fmt.Errorf("%w: %s", domain.ErrParticipantNotFound, participantID)
	}
	return p, nil
}

// conflictError rebuilds the InvalidState error from fresh durable state
// after a lost transition race.
func (s *Service) conflictError(ctx context.Context, sessionID, op string, required domain.SessionState) error {
	cur, err := s.coord.Refresh(ctx, sessionID)
	if err != nil {
		return err
	}
	return &domain.InvalidStateError{Op: op, Current: cur.State, Required: required}
}

func (s *Service) publishState(sess domain.Session) {
	s.hub.Publish(Event{Type: EventStateChanged, SessionID: sess.ID, Payload: sess})
}

func (s *Service) publishLeaderboard(ctx context.Context, sessionID string) {
	participants, err := s.store.ListParticipants(ctx, sessionID)
	if err != nil {
		s.log.Warn("leaderboard publish skipped", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	s.hub.Publish(Event{
		Type:      EventLeaderboardUpdated,
		SessionID: sessionID,
		Payload:   buildLeaderboard(sessionID, participants, false, s.now()),
	})
}
