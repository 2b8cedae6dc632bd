package app

import (
	"math"

	"trivia-live-service/internal/domain"
)

// ScoringRules are the session-wide scoring knobs that are not part of the
// quiz content itself.
type ScoringRules struct {
	// StreakBonusStep is awarded per consecutive correct answer already on
	// the streak before this one. Defaults to 10.
	StreakBonusStep int
	// PartialCreditPenalty weights each extra incorrect selection against
	// the correctness fraction. Defaults to 1 (one wrong pick cancels one
	// right pick).
	PartialCreditPenalty float64
}

func (r ScoringRules) withDefaults() ScoringRules {
	if r.StreakBonusStep <= 0 {
		r.StreakBonusStep = 10
	}
	if r.PartialCreditPenalty <= 0 {
		r.PartialCreditPenalty = 1
	}
	return r
}

// scoreAnswer evaluates a submission against the question and the
// participant's pre-answer streak. It returns the outcome and the streak
// count to store: incremented on a correct answer, zero otherwise.
func scoreAnswer(question domain.Question, selected []string, responseTimeMs int64, streakBefore int, rules ScoringRules) (domain.AnswerOutcome, int) {
	frac, partial := correctnessFraction(question, selected, rules.PartialCreditPenalty)
	correct := frac > 0

	rawBase := float64(question.Scoring.BasePoints) * frac
	base := roundPoints(rawBase)

	speed := 0
	if correct && question.TimeLimitMs > 0 && responseTimeMs < question.TimeLimitMs {
		remaining := 1 - float64(responseTimeMs)/float64(question.TimeLimitMs)
		speed = roundPoints(rawBase * question.Scoring.SpeedBonusMultiplier * remaining)
	}

	streakBonus := 0
	newStreak := 0
	if correct {
		streakBonus = streakBefore * rules.StreakBonusStep
		newStreak = streakBefore + 1
	}

	total := base + speed + streakBonus
	if total < 0 {
		total = 0
	}

	return domain.AnswerOutcome{
		QuestionID:    question.ID,
		IsCorrect:     correct,
		BasePoints:    base,
		SpeedBonus:    speed,
		StreakBonus:   streakBonus,
		PointsAwarded: total,
		PartialCredit: partial,
	}, newStreak
}

// correctnessFraction grades the selected option set. Without partial credit
// the answer is all-or-nothing: the selected set must equal the correct set
// exactly. With partial credit the fraction is hits over the correct count,
// minus a penalty per extra incorrect selection, clamped to [0, 1].
// Unanswered or fully wrong is always 0.
func correctnessFraction(q domain.Question, selected []string, penalty float64) (float64, bool) {
	correct := q.CorrectOptionIDs()
	if len(correct) == 0 || len(selected) == 0 {
		return 0, false
	}

	seen := make(map[string]struct{}, len(selected))
	hits, extras := 0, 0
	for _, id := range selected {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := correct[id]; ok {
			hits++
		} else {
			extras++
		}
	}

	if !q.Scoring.PartialCreditEnabled {
		if hits == len(correct) && extras == 0 {
			return 1, false
		}
		return 0, false
	}

	frac := (float64(hits) - penalty*float64(extras)) / float64(len(correct))
	if frac <= 0 {
		return 0, false
	}
	if frac >= 1 {
		return 1, false
	}
	return frac, true
}

func roundPoints(x float64) int {
	if x <= 0 {
		return 0
	}
	return int(math.Round(x))
}
