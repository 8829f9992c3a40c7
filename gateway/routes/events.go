package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"p2pexchange/core/events"
	"p2pexchange/storage/eventlog"
)

const streamWriteTimeout = 10 * time.Second

func (h *handlers) queryEvents(w http.ResponseWriter, r *http.Request) {
	if h.eventLog == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Code: "Unavailable", Error: "event log disabled"})
		return
	}
	query := r.URL.Query()
	filter := eventlog.Filter{Type: query.Get("type")}
	if raw := query.Get("offer"); raw != "" {
		id, err := parseID("offer", raw)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		filter.OfferID = events.FormatID(id)
	}
	if raw := query.Get("after"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			h.fail(w, r, badRequest("after: must be a non-negative integer"))
			return
		}
		filter.After = v
	}
	if raw := query.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			h.fail(w, r, badRequest("limit: must be a positive integer"))
			return
		}
		filter.Limit = v
	}
	records, err := h.eventLog.Query(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if records == nil {
		records = []eventlog.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": records})
}

// stream pushes committed events to a websocket client. The optional type
// query parameter keeps only events whose type starts with the given prefix.
func (h *handlers) stream(w http.ResponseWriter, r *http.Request) {
	if h.broadcaster == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Code: "Unavailable", Error: "event stream disabled"})
		return
	}
	prefix := r.URL.Query().Get("type")
	// Subscribe before the upgrade so nothing committed after the handshake
	// completes is missed.
	feed, cancel := h.broadcaster.Subscribe()
	defer cancel()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case evt, ok := <-feed:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "broadcaster closed")
				return
			}
			if prefix != "" && !strings.HasPrefix(evt.Type, prefix) {
				continue
			}
			data, err := json.Marshal(evt)
			if err != nil {
				h.logger.Error("encode stream event", "type", evt.Type, "error", err)
				continue
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, streamWriteTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancelWrite()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					h.logger.Debug("stream write failed", "error", err)
				}
				return
			}
		}
	}
}
