package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-live-service/internal/domain"
)

// Store is the Postgres-backed durable store for sessions, participants, and
// answers. It is the single source of truth; the cache is only a projection.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const sessionColumns = `id, quiz_id, join_code, state, current_question, voided_questions, created_at, started_at, ended_at,
	(SELECT COUNT(*) FROM participants p WHERE p.session_id = sessions.id)`

func (s *Store) CreateSession(ctx context.Context, sess domain.Session) error {
	voided, err := json.Marshal(emptyIfNil(sess.VoidedQuestions))
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, quiz_id, join_code, state, current_question, voided_questions, created_at, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sess.ID, sess.QuizID, sess.JoinCode, string(sess.State), sess.CurrentQuestionIndex, voided,
		sess.CreatedAt, sess.StartedAt, sess.EndedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (domain.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=$1`, id)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return sess, err
}

func (s *Store) GetSessionByJoinCode(ctx context.Context, code string) (domain.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE join_code=$1`, code)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, fmt.Errorf("%w: join code %s", domain.ErrSessionNotFound, code)
	}
	return sess, err
}

// TransitionSession performs the lifecycle edge as one conditional UPDATE, so
// two racing callers can never both win the same edge.
func (s *Store) TransitionSession(ctx context.Context, id string, from domain.SessionState, upd domain.SessionUpdate) (domain.Session, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE sessions
		 SET state=$2,
		     current_question=COALESCE($3, current_question),
		     started_at=COALESCE($4, started_at),
		     ended_at=COALESCE($5, ended_at)
		 WHERE id=$1 AND state=$6
		 RETURNING `+sessionColumns,
		id, string(upd.State), upd.CurrentQuestionIndex, upd.StartedAt, upd.EndedAt, string(from))
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the session is missing or another writer already moved it.
		if _, getErr := s.GetSession(ctx, id); getErr != nil {
			return domain.Session{}, getErr
		}
		return domain.Session{}, domain.ErrStateConflict
	}
	return sess, err
}

func (s *Store) VoidQuestion(ctx context.Context, sessionID, questionID string) (domain.Session, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE sessions
		 SET voided_questions = CASE
		     WHEN voided_questions @> to_jsonb($2::text) THEN voided_questions
		     ELSE voided_questions || to_jsonb($2::text)
		 END
		 WHERE id=$1
		 RETURNING `+sessionColumns,
		sessionID, questionID)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return sess, err
}

func (s *Store) CreateParticipant(ctx context.Context, p domain.Participant) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO participants (id, session_id, nickname, joined_at, is_active, is_eliminated, is_spectator, is_banned, total_score, total_time_ms, streak_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.SessionID, p.Nickname, p.JoinedAt, p.IsActive, p.IsEliminated, p.IsSpectator, p.IsBanned,
		p.TotalScore, p.TotalTimeMs, p.StreakCount)
	if err != nil {
		return fmt.Errorf("create participant: %w", err)
	}
	return nil
}

const participantColumns = `id, session_id, nickname, joined_at, is_active, is_eliminated, is_spectator, is_banned, total_score, total_time_ms, streak_count`

func (s *Store) GetParticipant(ctx context.Context, id string) (domain.Participant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE id=$1`, id)
	p, err := scanParticipant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Participant{}, fmt.Errorf("%w: %s", domain.ErrParticipantNotFound, id)
	}
	return p, err
}

func (s *Store) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE session_id=$1 ORDER BY joined_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordAnswer inserts the immutable answer row and folds its points into the
// participant aggregates in one transaction. The answers primary key makes a
// retried submission a no-op insert, which is surfaced as
// domain.ErrAnswerAlreadySubmitted instead of double-scoring.
func (s *Store) RecordAnswer(ctx context.Context, answer domain.Answer, newStreak int) (domain.Participant, error) {
	selected, err := json.Marshal(emptyIfNil(answer.SelectedOptions))
	if err != nil {
		return domain.Participant{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO answers (session_id, participant_id, question_id, selected_options, response_time_ms, is_correct, points_awarded, speed_bonus_applied, streak_bonus_applied, partial_credit_applied, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (session_id, participant_id, question_id) DO NOTHING`,
		answer.SessionID, answer.ParticipantID, answer.QuestionID, selected, answer.ResponseTimeMs,
		answer.IsCorrect, answer.PointsAwarded, answer.SpeedBonusApplied, answer.StreakBonusApplied,
		answer.PartialCreditApplied, answer.SubmittedAt)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("insert answer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Participant{}, domain.ErrAnswerAlreadySubmitted
	}

	row := tx.QueryRow(ctx,
		`UPDATE participants
		 SET total_score = total_score + $2,
		     total_time_ms = total_time_ms + $3,
		     streak_count = $4
		 WHERE id=$1
		 RETURNING `+participantColumns,
		answer.ParticipantID, answer.PointsAwarded, answer.ResponseTimeMs, newStreak)
	p, err := scanParticipant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Participant{}, fmt.Errorf("%w: %s", domain.ErrParticipantNotFound, answer.ParticipantID)
	}
	if err != nil {
		return domain.Participant{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Participant{}, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

func (s *Store) SetParticipantFlags(ctx context.Context, id string, flags domain.ParticipantFlags) (domain.Participant, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE participants
		 SET is_active=COALESCE($2, is_active),
		     is_eliminated=COALESCE($3, is_eliminated),
		     is_spectator=COALESCE($4, is_spectator),
		     is_banned=COALESCE($5, is_banned)
		 WHERE id=$1
		 RETURNING `+participantColumns,
		id, flags.IsActive, flags.IsEliminated, flags.IsSpectator, flags.IsBanned)
	p, err := scanParticipant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Participant{}, fmt.Errorf("%w: %s", domain.ErrParticipantNotFound, id)
	}
	return p, err
}

func scanSession(row pgx.Row) (domain.Session, error) {
	var sess domain.Session
	var state string
	var voided []byte
	var count int64
	err := row.Scan(&sess.ID, &sess.QuizID, &sess.JoinCode, &state, &sess.CurrentQuestionIndex,
		&voided, &sess.CreatedAt, &sess.StartedAt, &sess.EndedAt, &count)
	if err != nil {
		return domain.Session{}, err
	}
	sess.State = domain.SessionState(state)
	sess.ParticipantCount = int(count)
	if len(voided) > 0 {
		if err := json.Unmarshal(voided, &sess.VoidedQuestions); err != nil {
			return domain.Session{}, fmt.Errorf("unmarshal voided questions: %w", err)
		}
	}
	if len(sess.VoidedQuestions) == 0 {
		sess.VoidedQuestions = nil
	}
	return sess, nil
}

func scanParticipant(row pgx.Row) (domain.Participant, error) {
	var p domain.Participant
	err := row.Scan(&p.ID, &p.SessionID, &p.Nickname, &p.JoinedAt, &p.IsActive, &p.IsEliminated,
		&p.IsSpectator, &p.IsBanned, &p.TotalScore, &p.TotalTimeMs, &p.StreakCount)
	if err != nil {
		return domain.Participant{}, err
	}
	return p, nil
}

func emptyIfNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
