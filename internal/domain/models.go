package domain

import "time"

// ScoringConfig is the per-question scoring knobs carried by the quiz content.
type ScoringConfig struct {
	BasePoints           int     `json:"basePoints"`
	SpeedBonusMultiplier float64 `json:"speedBonusMultiplier"`
	PartialCreditEnabled bool    `json:"partialCreditEnabled"`
}

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models a timed question with one or more correct options.
type Question struct {
	ID          string        `json:"id"`
	Prompt      string        `json:"prompt"`
	Options     []Option      `json:"options"`
	TimeLimitMs int64         `json:"timeLimitMs"`
	Scoring     ScoringConfig `json:"scoring"`
}

// CorrectOptionIDs returns the set of option IDs flagged correct.
func (q Question) CorrectOptionIDs() map[string]struct{} {
	correct := make(map[string]struct{})
	for _, opt := range q.Options {
		if opt.Correct {
			correct[opt.ID] = struct{}{}
		}
	}
	return correct
}

// Quiz is an ordered collection of questions. Quizzes are immutable for the
// lifetime of any session referencing them.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Question looks up a question by ID.
func (q Quiz) Question(questionID string) (Question, bool) {
	for i := range q.Questions {
		if q.Questions[i].ID == questionID {
			return q.Questions[i], true
		}
	}
	return Question{}, false
}

// Session is the aggregate root for a live trivia run. It is created once,
// mutated only through lifecycle transitions, and never physically deleted.
type Session struct {
	ID                   string       `json:"id"`
	QuizID               string       `json:"quizId"`
	JoinCode             string       `json:"joinCode"`
	State                SessionState `json:"state"`
	CurrentQuestionIndex int          `json:"currentQuestionIndex"`
	ParticipantCount     int          `json:"participantCount"`
	VoidedQuestions      []string     `json:"voidedQuestions,omitempty"`
	CreatedAt            time.Time    `json:"createdAt"`
	StartedAt            *time.Time   `json:"startedAt,omitempty"`
	EndedAt              *time.Time   `json:"endedAt,omitempty"`
}

// QuestionVoided reports whether the question was voided by the host.
func (s Session) QuestionVoided(questionID string) bool {
	for _, id := range s.VoidedQuestions {
		if id == questionID {
			return true
		}
	}
	return false
}

// Participant is scoped to exactly one session.
type Participant struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"sessionId"`
	Nickname     string    `json:"nickname"`
	JoinedAt     time.Time `json:"joinedAt"`
	IsActive     bool      `json:"isActive"`
	IsEliminated bool      `json:"isEliminated"`
	IsSpectator  bool      `json:"isSpectator"`
	IsBanned     bool      `json:"isBanned"`
	TotalScore   int       `json:"totalScore"`
	TotalTimeMs  int64     `json:"totalTimeMs"`
	StreakCount  int       `json:"streakCount"`
}

// Answer is the immutable record of one submission. Exactly one exists per
// (participant, question) pair.
type Answer struct {
	SessionID            string    `json:"sessionId"`
	ParticipantID        string    `json:"participantId"`
	QuestionID           string    `json:"questionId"`
	SelectedOptions      []string  `json:"selectedOptions"`
	ResponseTimeMs       int64     `json:"responseTimeMs"`
	IsCorrect            bool      `json:"isCorrect"`
	PointsAwarded        int       `json:"pointsAwarded"`
	SpeedBonusApplied    bool      `json:"speedBonusApplied"`
	StreakBonusApplied   bool      `json:"streakBonusApplied"`
	PartialCreditApplied bool      `json:"partialCreditApplied"`
	SubmittedAt          time.Time `json:"submittedAt"`
}

// AnswerOutcome summarizes the scoring result returned to the submitter.
type AnswerOutcome struct {
	QuestionID    string `json:"questionId"`
	IsCorrect     bool   `json:"isCorrect"`
	BasePoints    int    `json:"basePoints"`
	SpeedBonus    int    `json:"speedBonus"`
	StreakBonus   int    `json:"streakBonus"`
	PointsAwarded int    `json:"pointsAwarded"`
	PartialCredit bool   `json:"partialCredit"`
	TotalScore    int    `json:"totalScore"`
	Streak        int    `json:"streak"`
}

// JoinResult is handed back to a freshly admitted participant.
type JoinResult struct {
	ParticipantID string `json:"participantId"`
	SessionID     string `json:"sessionId"`
	SessionToken  string `json:"sessionToken"`
	Nickname      string `json:"nickname"`
	IsSpectator   bool   `json:"isSpectator"`
}

// LeaderboardEntry is a ranked view of a participant.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	ParticipantID string `json:"participantId"`
	Nickname      string `json:"nickname"`
	TotalScore    int    `json:"totalScore"`
	TotalTimeMs   int64  `json:"totalTimeMs"`
	IsSpectator   bool   `json:"isSpectator"`
	IsEliminated  bool   `json:"isEliminated"`
}

// Leaderboard captures the ordered scoreboard for a session.
type Leaderboard struct {
	SessionID string             `json:"sessionId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// SessionStatistics aggregates final results over active participants.
// Averages are rounded to two decimal places and zero when nobody is active.
type SessionStatistics struct {
	TotalParticipants     int     `json:"totalParticipants"`
	TotalQuestions        int     `json:"totalQuestions"`
	AverageScore          float64 `json:"averageScore"`
	AverageCompletionTime float64 `json:"averageCompletionTime"`
}

// SessionResults is the final read-model returned once a session ends.
type SessionResults struct {
	Leaderboard Leaderboard       `json:"leaderboard"`
	Statistics  SessionStatistics `json:"statistics"`
}

// SessionView is the full read-model for host and participant screens.
type SessionView struct {
	Session      Session       `json:"session"`
	Quiz         Quiz          `json:"quiz"`
	Participants []Participant `json:"participants"`
}
