package app

import (
	"math"
	"sort"
	"time"

	"trivia-live-service/internal/domain"
)

// buildLeaderboard ranks participants by score descending, breaking ties by
// cumulative response time ascending (faster ranks higher), then by join
// order for determinism. Ranks are sequential 1-based positions with no gaps
// on ties. With activeOnly, inactive participants are excluded entirely.
func buildLeaderboard(sessionID string, participants []domain.Participant, activeOnly bool, now time.Time) domain.Leaderboard {
	ranked := make([]domain.Participant, 0, len(participants))
	for _, p := range participants {
		if activeOnly && !p.IsActive {
			continue
		}
		ranked = append(ranked, p)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].TotalScore != ranked[j].TotalScore {
			return ranked[i].TotalScore > ranked[j].TotalScore
		}
		if ranked[i].TotalTimeMs != ranked[j].TotalTimeMs {
			return ranked[i].TotalTimeMs < ranked[j].TotalTimeMs
		}
		if !ranked[i].JoinedAt.Equal(ranked[j].JoinedAt) {
			return ranked[i].JoinedAt.Before(ranked[j].JoinedAt)
		}
		return ranked[i].Nickname < ranked[j].Nickname
	})

	entries := make([]domain.LeaderboardEntry, len(ranked))
	for i, p := range ranked {
		entries[i] = domain.LeaderboardEntry{
			Rank:          i + 1,
			ParticipantID: p.ID,
			Nickname:      p.Nickname,
			TotalScore:    p.TotalScore,
			TotalTimeMs:   p.TotalTimeMs,
			IsSpectator:   p.IsSpectator,
			IsEliminated:  p.IsEliminated,
		}
	}

	return domain.Leaderboard{SessionID: sessionID, Entries: entries, UpdatedAt: now}
}

// buildStatistics aggregates final numbers. Averages cover active
// participants only and are rounded to two decimal places; everything is
// zero when nobody is active.
func buildStatistics(participants []domain.Participant, totalQuestions int) domain.SessionStatistics {
	stats := domain.SessionStatistics{
		TotalParticipants: len(participants),
		TotalQuestions:    totalQuestions,
	}

	var active int
	var scoreSum, timeSum float64
	for _, p := range participants {
		if !p.IsActive {
			continue
		}
		active++
		scoreSum += float64(p.TotalScore)
		timeSum += float64(p.TotalTimeMs)
	}
	if active == 0 {
		return stats
	}

	stats.AverageScore = round2(scoreSum / float64(active))
	stats.AverageCompletionTime = round2(timeSum / float64(active))
	return stats
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
