package app

import (
	"testing"

	"trivia-live-service/internal/domain"
)

func scoringQuestion(partial bool) domain.Question {
	return domain.Question{
		ID:          "q1",
		Prompt:      "Pick the right options",
		TimeLimitMs: 30000,
		Options: []domain.Option{
			{ID: "a", Text: "Right", Correct: true},
			{ID: "b", Text: "Also right", Correct: true},
			{ID: "c", Text: "Wrong"},
			{ID: "d", Text: "Also wrong"},
		},
		Scoring: domain.ScoringConfig{
			BasePoints:           100,
			SpeedBonusMultiplier: 0.5,
			PartialCreditEnabled: partial,
		},
	}
}

func TestScoreAnswerCorrectWithSpeedBonus(t *testing.T) {
	rules := ScoringRules{}.withDefaults()
	outcome, streak := scoreAnswer(scoringQuestion(false), []string{"a", "b"}, 15000, 0, rules)

	if !outcome.IsCorrect {
		t.Fatalf("expected correct, got %+v", outcome)
	}
	if outcome.BasePoints != 100 {
		t.Fatalf("expected base 100, got %d", outcome.BasePoints)
	}
	// half the time limit used: bonus = 100 * 0.5 * 0.5 = 25
	if outcome.SpeedBonus != 25 {
		t.Fatalf("expected speed bonus 25, got %d", outcome.SpeedBonus)
	}
	if outcome.StreakBonus != 0 {
		t.Fatalf("expected no streak bonus on first correct, got %d", outcome.StreakBonus)
	}
	if outcome.PointsAwarded != 125 {
		t.Fatalf("expected 125 total, got %d", outcome.PointsAwarded)
	}
	if streak != 1 {
		t.Fatalf("expected streak 1, got %d", streak)
	}
}

func TestScoreAnswerDeterministic(t *testing.T) {
	rules := ScoringRules{}.withDefaults()
	first, _ := scoreAnswer(scoringQuestion(false), []string{"a", "b"}, 15000, 2, rules)
	for i := 0; i < 5; i++ {
		again, _ := scoreAnswer(scoringQuestion(false), []string{"a", "b"}, 15000, 2, rules)
		if again != first {
			t.Fatalf("scoring not deterministic: %+v vs %+v", again, first)
		}
	}
}

func TestScoreAnswerStreakBonus(t *testing.T) {
	rules := ScoringRules{}.withDefaults()
	outcome, streak := scoreAnswer(scoringQuestion(false), []string{"a", "b"}, 30000, 3, rules)

	if outcome.StreakBonus != 30 {
		t.Fatalf("expected streak bonus 30 for pre-answer streak 3, got %d", outcome.StreakBonus)
	}
	if outcome.SpeedBonus != 0 {
		t.Fatalf("expected no speed bonus at the time limit, got %d", outcome.SpeedBonus)
	}
	if streak != 4 {
		t.Fatalf("expected streak 4, got %d", streak)
	}
}

func TestScoreAnswerIncorrectResetsStreak(t *testing.T) {
	rules := ScoringRules{}.withDefaults()
	outcome, streak := scoreAnswer(scoringQuestion(false), []string{"c"}, 1000, 5, rules)

	if outcome.IsCorrect {
		t.Fatalf("expected incorrect, got %+v", outcome)
	}
	if outcome.PointsAwarded != 0 {
		t.Fatalf("expected 0 points, got %d", outcome.PointsAwarded)
	}
	if streak != 0 {
		t.Fatalf("expected streak reset, got %d", streak)
	}
}

func TestScoreAnswerUnanswered(t *testing.T) {
	rules := ScoringRules{}.withDefaults()
	outcome, streak := scoreAnswer(scoringQuestion(true), nil, 0, 2, rules)

	if outcome.IsCorrect || outcome.PointsAwarded != 0 || streak != 0 {
		t.Fatalf("expected zero outcome with streak reset, got %+v streak=%d", outcome, streak)
	}
}

func TestScoreAnswerExactMatchRequiredWithoutPartialCredit(t *testing.T) {
	rules := ScoringRules{}.withDefaults()

	// One of two correct options selected: all-or-nothing scores zero.
	outcome, _ := scoreAnswer(scoringQuestion(false), []string{"a"}, 1000, 0, rules)
	if outcome.IsCorrect || outcome.PointsAwarded != 0 {
		t.Fatalf("expected zero without exact match, got %+v", outcome)
	}

	// Both correct plus one wrong is also not an exact match.
	outcome, _ = scoreAnswer(scoringQuestion(false), []string{"a", "b", "c"}, 1000, 0, rules)
	if outcome.IsCorrect || outcome.PointsAwarded != 0 {
		t.Fatalf("expected zero with extra selection, got %+v", outcome)
	}
}

func TestScoreAnswerPartialCredit(t *testing.T) {
	rules := ScoringRules{}.withDefaults()

	// One of two correct options: fraction 0.5, base 50.
	outcome, streak := scoreAnswer(scoringQuestion(true), []string{"a"}, 30000, 0, rules)
	if !outcome.IsCorrect {
		t.Fatalf("expected partial answer to count as correct, got %+v", outcome)
	}
	if !outcome.PartialCredit {
		t.Fatalf("expected partial credit flag, got %+v", outcome)
	}
	if outcome.BasePoints != 50 {
		t.Fatalf("expected base 50, got %d", outcome.BasePoints)
	}
	if streak != 1 {
		t.Fatalf("expected partial answer to extend streak, got %d", streak)
	}

	// Two correct plus one wrong: (2 - 1) / 2 = 0.5.
	outcome, _ = scoreAnswer(scoringQuestion(true), []string{"a", "b", "c"}, 30000, 0, rules)
	if outcome.BasePoints != 50 || !outcome.PartialCredit {
		t.Fatalf("expected penalised base 50, got %+v", outcome)
	}

	// One correct and one wrong cancel out entirely.
	outcome, streak = scoreAnswer(scoringQuestion(true), []string{"a", "c"}, 30000, 3, rules)
	if outcome.IsCorrect || outcome.PointsAwarded != 0 {
		t.Fatalf("expected zero after penalty, got %+v", outcome)
	}
	if streak != 0 {
		t.Fatalf("expected streak reset at zero fraction, got %d", streak)
	}
}

func TestScoreAnswerPartialCreditSpeedBonusUsesRawBase(t *testing.T) {
	rules := ScoringRules{}.withDefaults()

	// Fraction 0.5, half the time limit used: bonus = 50 * 0.5 * 0.5 ~ 13.
	outcome, _ := scoreAnswer(scoringQuestion(true), []string{"a"}, 15000, 0, rules)
	if outcome.SpeedBonus != 13 {
		t.Fatalf("expected speed bonus 13, got %d", outcome.SpeedBonus)
	}
}

func TestScoreAnswerDuplicateSelectionsCollapse(t *testing.T) {
	rules := ScoringRules{}.withDefaults()
	outcome, _ := scoreAnswer(scoringQuestion(false), []string{"a", "a", "b"}, 30000, 0, rules)
	if !outcome.IsCorrect || outcome.BasePoints != 100 {
		t.Fatalf("expected duplicates to collapse to an exact match, got %+v", outcome)
	}
}

func TestScoreAnswerOverTimeLimitSkipsSpeedBonus(t *testing.T) {
	rules := ScoringRules{}.withDefaults()
	outcome, _ := scoreAnswer(scoringQuestion(false), []string{"a", "b"}, 45000, 0, rules)
	if outcome.SpeedBonus != 0 {
		t.Fatalf("expected no speed bonus past the limit, got %d", outcome.SpeedBonus)
	}
	if outcome.PointsAwarded != 100 {
		t.Fatalf("expected base only, got %d", outcome.PointsAwarded)
	}
}
