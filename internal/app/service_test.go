package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/contentfilter"
	"trivia-live-service/internal/domain"
	"trivia-live-service/internal/infra/memory"
	"trivia-live-service/internal/token"
)

type testEnv struct {
	service *app.Service
	store   *memory.Store
	cache   *memory.Cache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	cache := memory.NewCache()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Capitals",
			Questions: []domain.Question{
				{
					ID:          "q1",
					Prompt:      "Capital of France?",
					TimeLimitMs: 30000,
					Options: []domain.Option{
						{ID: "a", Text: "Paris", Correct: true},
						{ID: "b", Text: "Lyon"},
					},
					Scoring: domain.ScoringConfig{BasePoints: 100, SpeedBonusMultiplier: 0.5},
				},
				{
					ID:          "q2",
					Prompt:      "Capital of Japan?",
					TimeLimitMs: 30000,
					Options: []domain.Option{
						{ID: "a", Text: "Tokyo", Correct: true},
						{ID: "b", Text: "Osaka"},
					},
					Scoring: domain.ScoringConfig{BasePoints: 100, SpeedBonusMultiplier: 0.5},
				},
			},
		},
	}), 5*time.Minute)

	service := app.NewService(store, cache, quizzes,
		token.NewIssuer("test-secret", time.Hour),
		contentfilter.NewDefault(),
		app.Config{},
		nil)
	return &testEnv{service: service, store: store, cache: cache}
}

func (e *testEnv) mustCreate(t *testing.T) domain.Session {
	t.Helper()
	sess, err := e.service.CreateSession(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}
	return sess
}

func (e *testEnv) mustJoin(t *testing.T, code, nickname, clientID string) domain.JoinResult {
	t.Helper()
	res, err := e.service.Join(context.Background(), code, nickname, clientID)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	return res
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	sess := env.mustCreate(t)
	if sess.State != domain.StateLobby {
		t.Fatalf("expected new session in LOBBY, got %s", sess.State)
	}
	if len(sess.JoinCode) != 6 {
		t.Fatalf("expected 6-character join code, got %q", sess.JoinCode)
	}

	sess, err := env.service.Start(ctx, sess.ID)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if sess.State != domain.StateActiveQuestion || sess.CurrentQuestionIndex != 0 {
		t.Fatalf("expected first question active, got %+v", sess)
	}
	if sess.StartedAt == nil {
		t.Fatalf("expected startedAt to be set")
	}

	if sess, err = env.service.AdvanceToReveal(ctx, sess.ID); err != nil {
		t.Fatalf("reveal failed: %v", err)
	}
	if sess.State != domain.StateReveal {
		t.Fatalf("expected REVEAL, got %s", sess.State)
	}

	if sess, err = env.service.AdvanceToNextQuestion(ctx, sess.ID); err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if sess.State != domain.StateActiveQuestion || sess.CurrentQuestionIndex != 1 {
		t.Fatalf("expected second question active, got %+v", sess)
	}

	if sess, err = env.service.AdvanceToReveal(ctx, sess.ID); err != nil {
		t.Fatalf("reveal failed: %v", err)
	}
	// Advancing past the last question ends the session.
	if sess, err = env.service.AdvanceToNextQuestion(ctx, sess.ID); err != nil {
		t.Fatalf("final advance failed: %v", err)
	}
	if sess.State != domain.StateEnded {
		t.Fatalf("expected ENDED after the last question, got %s", sess.State)
	}
	if sess.EndedAt == nil {
		t.Fatalf("expected endedAt to be set")
	}
}

func TestStartFromWrongState(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.mustCreate(t)

	if _, err := env.service.Start(ctx, sess.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	_, err := env.service.Start(ctx, sess.ID)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Cannot start quiz from ACTIVE_QUESTION state") {
		t.Fatalf("unexpected message: %q", err.Error())
	}

	if _, err := env.service.AdvanceToNextQuestion(ctx, sess.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state error for advance, got %v", err)
	}
}

func TestEndTwice(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.mustCreate(t)

	if _, err := env.service.End(ctx, sess.ID); err != nil {
		t.Fatalf("end failed: %v", err)
	}

	_, err := env.service.End(ctx, sess.ID)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state error, got %v", err)
	}
	if err.Error() != "Quiz has already ended." {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestCacheMirrorsDurableState(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.mustCreate(t)

	if _, err := env.service.Start(ctx, sess.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	durable, err := env.store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("durable read failed: %v", err)
	}

	raw, ok, err := env.cache.Get(ctx, "session:"+sess.ID)
	if err != nil || !ok {
		t.Fatalf("expected mirrored session in cache, ok=%v err=%v", ok, err)
	}
	var mirrored domain.Session
	if err := json.Unmarshal([]byte(raw), &mirrored); err != nil {
		t.Fatalf("corrupt mirror: %v", err)
	}
	if mirrored.State != durable.State || mirrored.CurrentQuestionIndex != durable.CurrentQuestionIndex {
		t.Fatalf("mirror disagrees with durable state: %+v vs %+v", mirrored, durable)
	}
}

func TestReadFallsBackWhenMirrorMissing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.mustCreate(t)

	if err := env.cache.Del(ctx, "session:"+sess.ID); err != nil {
		t.Fatalf("del failed: %v", err)
	}

	view, err := env.service.GetState(ctx, sess.ID)
	if err != nil {
		t.Fatalf("expected durable fallback, got %v", err)
	}
	if view.Session.ID != sess.ID {
		t.Fatalf("unexpected session: %+v", view.Session)
	}

	// The fallback repopulates the mirror.
	if _, ok, _ := env.cache.Get(ctx, "session:"+sess.ID); !ok {
		t.Fatalf("expected mirror to be repopulated")
	}
}

func TestJoinLobbyAndMidGame(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.mustCreate(t)

	player := env.mustJoin(t, sess.JoinCode, "Alice", "ip-1")
	if player.IsSpectator {
		t.Fatalf("expected lobby joiner to be a player, got %+v", player)
	}
	if player.SessionToken == "" {
		t.Fatalf("expected a session token")
	}
	if player.SessionID != sess.ID {
		t.Fatalf("expected session %s, got %s", sess.ID, player.SessionID)
	}

	if _, err := env.service.Start(ctx, sess.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	late := env.mustJoin(t, sess.JoinCode, "Bob", "ip-2")
	if !late.IsSpectator {
		t.Fatalf("expected mid-game joiner to be a spectator, got %+v", late)
	}
}

func TestJoinRejectsBadCodes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.mustCreate(t)

	if _, err := env.service.Join(ctx, "ab!", "Alice", "ip-1"); !errors.Is(err, domain.ErrInvalidJoinCode) {
		t.Fatalf("expected malformed code rejection, got %v", err)
	}
	if _, err := env.service.Join(ctx, "ZZZZZZ", "Alice", "ip-1"); !errors.Is(err, domain.ErrInvalidJoinCode) {
		t.Fatalf("expected unknown code rejection, got %v", err)
	}
}

func TestJoinEndedSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.mustCreate(t)

	if _, err := env.service.End(ctx, sess.ID); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if _, err := env.service.Join(ctx, sess.JoinCode, "Alice", "ip-1"); !errors.Is(err, domain.ErrSessionEnded) {
		t.Fatalf("expected ended session rejection, got %v", err)
	}
}

func TestJoinRateLimited(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.mustCreate(t)

	for i := 0; i < 5; i++ {
		nick := "Player" + string(rune('A'+i))
		if _, err := env.service.Join(ctx, sess.JoinCode, nick, "ip-1"); err != nil {
			t.Fatalf("join %d failed: %v", i+1, err)
		}
	}

	_, err := env.service.Join(ctx, sess.JoinCode, "PlayerF", "ip-1")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected sixth join to be rate limited, got %v", err)
	}
	var rl *domain.RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitedError, got %T", err)
	}
	if rl.RetryAfterSeconds < 1 || rl.RetryAfterSeconds > 60 {
		t.Fatalf("retry-after out of bounds: %d", rl.RetryAfterSeconds)
	}

	// Other clients are unaffected.
	env.mustJoin(t, sess.JoinCode, "PlayerG", "ip-2")
}

func TestJoinInvalidNickname(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.mustCreate(t)

	if _, err := env.service.Join(ctx, sess.JoinCode, "x", "ip-1"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := env.service.Join(ctx, sess.JoinCode, "admin", "ip-1"); !errors.Is(err, domain.ErrInappropriate) {
		t.Fatalf("expected moderation rejection, got %v", err)
	}
}

func TestSubmitAnswerFlow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.mustCreate(t)
	player := env.mustJoin(t, sess.JoinCode, "Alice", "ip-1")

	// Answering before the question opens is rejected.
	_, err := env.service.SubmitAnswer(ctx, sess.ID, player.ParticipantID, "q1", []string{"a"}, 1000)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state before start, got %v", err)
	}

	if _, err := env.service.Start(ctx, sess.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	outcome, err := env.service.SubmitAnswer(ctx, sess.ID, player.ParticipantID, "q1", []string{"a"}, 15000)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !outcome.IsCorrect || outcome.PointsAwarded != 125 {
		t.Fatalf("expected 125 points, got %+v", outcome)
	}
	if outcome.TotalScore != 125 || outcome.Streak != 1 {
		t.Fatalf("expected aggregates updated, got %+v", outcome)
	}

	// One answer per participant per question.
	_, err = env.service.SubmitAnswer(ctx, sess.ID, player.ParticipantID, "q1", []string{"b"}, 2000)
	if !errors.Is(err, domain.ErrAnswerAlreadySubmitted) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}

	lb, err := env.service.Leaderboard(ctx, sess.ID, false)
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].TotalScore != 125 {
		t.Fatalf("expected score 125 on the board, got %+v", lb.Entries)
	}
}

func TestSpectatorCannotAnswer(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.mustCreate(t)

	if _, err := env.service.Start(ctx, sess.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	spectator := env.mustJoin(t, sess.JoinCode, "Late", "ip-1")

	_, err := env.service.SubmitAnswer(ctx, sess.ID, spectator.ParticipantID, "q1", []string{"a"}, 1000)
	if !errors.Is(err, domain.ErrSpectator) {
		t.Fatalf("expected spectator rejection, got %v", err)
	}
}

func TestVoidedQuestionScoresZero(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.mustCreate(t)
	player := env.mustJoin(t, sess.JoinCode, "Alice", "ip-1")

	if _, err := env.service.Start(ctx, sess.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := env.service.VoidQuestion(ctx, sess.ID, "q1"); err != nil {
		t.Fatalf("void failed: %v", err)
	}

	outcome, err := env.service.SubmitAnswer(ctx, sess.ID, player.ParticipantID, "q1", []string{"a"}, 1000)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if outcome.IsCorrect || outcome.PointsAwarded != 0 {
		t.Fatalf("expected zero outcome on a voided question, got %+v", outcome)
	}
	if outcome.Streak != 0 {
		t.Fatalf("expected streak untouched at zero, got %+v", outcome)
	}

	// The answer is still recorded: resubmission is a duplicate.
	_, err = env.service.SubmitAnswer(ctx, sess.ID, player.ParticipantID, "q1", []string{"a"}, 1000)
	if !errors.Is(err, domain.ErrAnswerAlreadySubmitted) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
}

func TestEliminateAndBan(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.mustCreate(t)
	alice := env.mustJoin(t, sess.JoinCode, "Alice", "ip-1")
	bob := env.mustJoin(t, sess.JoinCode, "Bobby", "ip-2")

	eliminated, err := env.service.EliminateParticipant(ctx, sess.ID, alice.ParticipantID)
	if err != nil {
		t.Fatalf("eliminate failed: %v", err)
	}
	if !eliminated.IsEliminated || !eliminated.IsSpectator {
		t.Fatalf("expected eliminated spectator, got %+v", eliminated)
	}
	if !eliminated.IsActive {
		t.Fatalf("expected eliminated participant to stay active on the board, got %+v", eliminated)
	}

	banned, err := env.service.BanParticipant(ctx, sess.ID, bob.ParticipantID)
	if err != nil {
		t.Fatalf("ban failed: %v", err)
	}
	if !banned.IsBanned || banned.IsActive {
		t.Fatalf("expected banned inactive participant, got %+v", banned)
	}

	// Banned participants vanish from the active leaderboard.
	lb, err := env.service.Leaderboard(ctx, sess.ID, true)
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	for _, e := range lb.Entries {
		if e.ParticipantID == bob.ParticipantID {
			t.Fatalf("expected banned participant excluded, got %+v", lb.Entries)
		}
	}
}

func TestEndReturnsResults(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.mustCreate(t)
	player := env.mustJoin(t, sess.JoinCode, "Alice", "ip-1")

	if _, err := env.service.Start(ctx, sess.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := env.service.SubmitAnswer(ctx, sess.ID, player.ParticipantID, "q1", []string{"a"}, 30000); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	results, err := env.service.End(ctx, sess.ID)
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if len(results.Leaderboard.Entries) != 1 || results.Leaderboard.Entries[0].TotalScore != 100 {
		t.Fatalf("unexpected final leaderboard: %+v", results.Leaderboard.Entries)
	}
	if results.Statistics.TotalParticipants != 1 || results.Statistics.TotalQuestions != 2 {
		t.Fatalf("unexpected statistics: %+v", results.Statistics)
	}
	if results.Statistics.AverageScore != 100 {
		t.Fatalf("expected average score 100, got %v", results.Statistics.AverageScore)
	}
}

func TestSubscribeDeliversLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.mustCreate(t)

	ch, cancel, err := env.service.Subscribe(ctx, sess.ID)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	if _, err := env.service.Start(ctx, sess.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	select {
	case ev := <-ch:
		if ev.Type != app.EventStateChanged || ev.SessionID != sess.ID {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a state change event")
	}
}

func TestConcurrentSessionsGetUniqueJoinCodes(t *testing.T) {
	env := newTestEnv(t)

	const n = 20
	var wg sync.WaitGroup
	codes := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := env.service.CreateSession(context.Background(), "quiz-1")
			if err != nil {
				t.Errorf("create failed: %v", err)
				return
			}
			codes <- sess.JoinCode
		}()
	}
	wg.Wait()
	close(codes)

	seen := make(map[string]struct{})
	for code := range codes {
		if _, dup := seen[code]; dup {
			t.Fatalf("duplicate join code %q", code)
		}
		seen[code] = struct{}{}
	}
}
