package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/reseller/internal/events"
	"github.com/aristath/reseller/internal/utils"
)

const (
	streamBuffer      = 100
	heartbeatInterval = 30 * time.Second
	wsWriteTimeout    = 5 * time.Second
)

// EventsStreamHandler streams bus events to clients over SSE or websocket.
type EventsStreamHandler struct {
	eventBus  *events.Bus
	log       zerolog.Logger
	heartbeat time.Duration
}

// streamMessage is the wire shape of one streamed event.
type streamMessage struct {
	Type      string      `json:"type"`
	Module    string      `json:"module,omitempty"`
	Timestamp string      `json:"timestamp"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// NewEventsStreamHandler creates a new events stream handler.
func NewEventsStreamHandler(eventBus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		eventBus:  eventBus,
		log:       log.With().Str("component", "events_stream").Logger(),
		heartbeat: heartbeatInterval,
	}
}

// subscribe opens a subscription filtered by the ?types= query parameter.
func (h *EventsStreamHandler) subscribe(r *http.Request) *events.Subscription {
	var types []events.EventType
	for _, t := range utils.ParseCSV(r.URL.Query().Get("types")) {
		types = append(types, events.EventType(t))
	}
	return h.eventBus.Subscribe(streamBuffer, types...)
}

func toMessage(e *events.Event) streamMessage {
	return streamMessage{
		Type:      string(e.Type),
		Module:    e.Module,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
		Data:      e.Data,
	}
}

func controlMessage(kind, message string) streamMessage {
	return streamMessage{
		Type:      kind,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Message:   message,
	}
}

// ServeHTTP handles GET /api/events/stream requests (SSE).
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := h.subscribe(r)
	defer sub.Close()

	h.log.Info().Str("types", r.URL.Query().Get("types")).Msg("Client connected to event stream")

	h.writeSSE(w, controlMessage("connected", "Connected to event stream"))
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.log.Info().Msg("Client disconnected from event stream")
			return

		case event, ok := <-sub.C:
			if !ok {
				return
			}
			h.writeSSE(w, toMessage(event))
			flusher.Flush()

		case <-heartbeat.C:
			h.writeSSE(w, controlMessage("heartbeat", ""))
			flusher.Flush()
		}
	}
}

func (h *EventsStreamHandler) writeSSE(w http.ResponseWriter, msg streamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Str("event_type", msg.Type).Msg("Failed to encode event")
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// ServeWebSocket handles GET /api/events/ws requests.
func (h *EventsStreamHandler) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	sub := h.subscribe(r)
	defer sub.Close()

	h.log.Info().Str("types", r.URL.Query().Get("types")).Msg("Websocket client connected")

	// CloseRead discards client frames and cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	if err := h.writeWS(ctx, conn, controlMessage("connected", "Connected to event stream")); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("Websocket client disconnected")
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case event, ok := <-sub.C:
			if !ok {
				return
			}
			if err := h.writeWS(ctx, conn, toMessage(event)); err != nil {
				return
			}

		case <-heartbeat.C:
			if err := h.writeWS(ctx, conn, controlMessage("heartbeat", "")); err != nil {
				return
			}
		}
	}
}

func (h *EventsStreamHandler) writeWS(ctx context.Context, conn *websocket.Conn, msg streamMessage) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := wsjson.Write(writeCtx, conn, msg); err != nil {
		h.log.Debug().Err(err).Str("event_type", msg.Type).Msg("Websocket write failed")
		return err
	}
	return nil
}
