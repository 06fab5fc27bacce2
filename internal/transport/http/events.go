package httptransport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"studygenie/internal/session"
)

const subscriberBuffer = 32

// StateSource is the part of the session manager the event stream follows.
type StateSource interface {
	State() session.State
	OnStateChange(listener session.StateListener) func()
	OnProfileChange(listener session.ProfileListener) func()
}

type serverEvent struct {
	name string
	data []byte
}

// EventHub is the session presenter for HTTP clients. Notifications,
// navigations, state and profile changes are fanned out to every connected
// /api/events stream. A subscriber that falls behind loses events.
type EventHub struct {
	logger *slog.Logger

	mu          sync.Mutex
	source      StateSource
	subscribers map[chan serverEvent]struct{}
}

var _ session.Presenter = (*EventHub)(nil)

func NewEventHub(logger *slog.Logger) *EventHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHub{
		logger:      logger,
		subscribers: make(map[chan serverEvent]struct{}),
	}
}

func (h *EventHub) Notify(n session.Notification) {
	h.publish("notification", n)
}

func (h *EventHub) Navigate(n session.Navigation) {
	h.publish("navigation", n)
}

// Watch forwards state and profile changes from source. The returned function
// stops forwarding.
func (h *EventHub) Watch(source StateSource) func() {
	h.mu.Lock()
	h.source = source
	h.mu.Unlock()

	stopState := source.OnStateChange(func(st session.State) {
		h.publish("state", newSessionResponse(st))
	})
	stopProfile := source.OnProfileChange(func(p *session.Profile) {
		h.publish("profile", p)
	})
	return func() {
		stopState()
		stopProfile()
	}
}

func (h *EventHub) publish(name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to encode server event", "event", name, "error", err)
		return
	}
	evt := serverEvent{name: name, data: data}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- evt:
		default:
			h.logger.Warn("event stream subscriber is behind, dropping event", "event", name)
		}
	}
}

func (h *EventHub) subscribe() (chan serverEvent, func()) {
	ch := make(chan serverEvent, subscriberBuffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subscribers, ch)
		h.mu.Unlock()
	}
}

func (h *EventHub) subscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// ServeHTTP streams events as text/event-stream until the client goes away.
// The first event is the current session state.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events, unsubscribe := h.subscribe()
	defer unsubscribe()

	h.mu.Lock()
	source := h.source
	h.mu.Unlock()
	if source != nil {
		data, err := json.Marshal(newSessionResponse(source.State()))
		if err == nil {
			if err := writeEvent(w, rc, serverEvent{name: "state", data: data}); err != nil {
				return
			}
		}
	}
	if err := rc.Flush(); err != nil {
		h.logger.WarnContext(r.Context(), "event stream not flushable", "error", err)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-events:
			if err := writeEvent(w, rc, evt); err != nil {
				h.logger.DebugContext(r.Context(), "event stream closed", "error", err)
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, evt serverEvent) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.name, evt.data); err != nil {
		return err
	}
	return rc.Flush()
}
