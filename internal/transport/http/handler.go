package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/domain"
)

// HostHandler exposes the host-side session controls over JSON.
type HostHandler struct {
	service *app.Service
	log     *zap.Logger
}

func NewHostHandler(service *app.Service, log *zap.Logger) *HostHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &HostHandler{service: service, log: log}
}

// Register mounts the host routes on mux.
func (h *HostHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /sessions", h.createSession)
	mux.HandleFunc("GET /sessions/{id}", h.getState)
	mux.HandleFunc("POST /sessions/{id}/start", h.transition(h.service.Start))
	mux.HandleFunc("POST /sessions/{id}/reveal", h.transition(h.service.AdvanceToReveal))
	mux.HandleFunc("POST /sessions/{id}/advance", h.transition(h.service.AdvanceToNextQuestion))
	mux.HandleFunc("POST /sessions/{id}/end", h.endSession)
	mux.HandleFunc("GET /sessions/{id}/leaderboard", h.leaderboard)
	mux.HandleFunc("GET /sessions/{id}/results", h.results)
	mux.HandleFunc("POST /sessions/{id}/questions/{questionId}/void", h.voidQuestion)
	mux.HandleFunc("POST /sessions/{id}/participants/{participantId}/eliminate", h.eliminate)
	mux.HandleFunc("POST /sessions/{id}/participants/{participantId}/ban", h.ban)
}

type createSessionRequest struct {
	QuizID string `json:"quizId"`
}

func (h *HostHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}
	sess, err := h.service.CreateSession(r.Context(), req.QuizID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *HostHandler) getState(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetState(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type transitionFunc = func(ctx context.Context, sessionID string) (domain.Session, error)

func (h *HostHandler) transition(op transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := op(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func (h *HostHandler) endSession(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.End(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *HostHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("activeOnly") == "true"
	lb, err := h.service.Leaderboard(r.Context(), r.PathValue("id"), activeOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *HostHandler) results(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.GetResults(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *HostHandler) voidQuestion(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.VoidQuestion(r.Context(), r.PathValue("id"), r.PathValue("questionId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *HostHandler) eliminate(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.EliminateParticipant(r.Context(), r.PathValue("id"), r.PathValue("participantId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *HostHandler) ban(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.BanParticipant(r.Context(), r.PathValue("id"), r.PathValue("participantId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var rl *domain.RateLimitedError
	if errors.As(err, &rl) {
		w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfterSeconds))
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrParticipantNotFound),
		errors.Is(err, domain.ErrQuestionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrStateConflict),
		errors.Is(err, domain.ErrAnswerAlreadySubmitted):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidJoinCode):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrInappropriate):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrSessionEnded):
		status = http.StatusGone
	case errors.Is(err, domain.ErrSpectator),
		errors.Is(err, domain.ErrParticipantBanned):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrAllocationExhausted):
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}

// clientIP extracts the caller identity used for rate limiting, preferring
// the first X-Forwarded-For hop when present.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
