package app

import "sync"

// EventType identifies the kind of push notification a session emits.
type EventType string

const (
	EventStateChanged       EventType = "STATE_CHANGED"
	EventParticipantJoined  EventType = "PARTICIPANT_JOINED"
	EventLeaderboardUpdated EventType = "LEADERBOARD_UPDATED"
	EventQuestionVoided     EventType = "QUESTION_VOIDED"
	EventSessionEnded       EventType = "SESSION_ENDED"
)

// Event is a push notification about a session. Payload holds the
// type-specific body (a session, a leaderboard, a participant, ...).
type Event struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"sessionId"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Hub fans session events out to subscribers. Delivery is best-effort: a
// slow subscriber has its oldest buffered event dropped rather than
// blocking the publisher.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers a listener for one session's events. The returned
// cancel function is idempotent and closes the channel.
func (h *Hub) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, 8)

	h.mu.Lock()
	subs, ok := h.subscribers[sessionID]
	if !ok {
		subs = make(map[chan Event]struct{})
		h.subscribers[sessionID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.subscribers[sessionID]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(h.subscribers, sessionID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of its session. When a
// subscriber's buffer is full the oldest pending event is discarded so the
// newest state always lands.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[ev.SessionID] {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
