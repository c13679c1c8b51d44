package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"trustflow/core/state"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsGapBatch     = 512
)

// handleEventsWS streams committed events from ?cursor=N onward: first the
// persisted backlog, then live events as transactions commit.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.node == nil {
		http.Error(w, "node unavailable", http.StatusServiceUnavailable)
		return
	}
	var cursor uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("cursor")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid cursor", http.StatusBadRequest)
			return
		}
		cursor = parsed
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	// Reads are not expected; CloseRead handles pings and peer close.
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, cursor); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			s.logger.Debug("event stream ended", "error", err)
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, cursor uint64) error {
	updates, cancel, backlog, err := s.node.SubscribeEvents(ctx, cursor)
	if err != nil {
		return err
	}
	defer cancel()

	next := cursor
	for _, record := range backlog {
		if err := writeEvent(ctx, conn, record); err != nil {
			return err
		}
		next = record.Sequence + 1
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case record, ok := <-updates:
			if !ok {
				return nil
			}
			// Skip anything the backlog already delivered.
			if record.Sequence < next {
				continue
			}
			if record.Sequence > next {
				// Live events were dropped or the backlog was truncated.
				filled, err := s.fillGap(ctx, conn, next, record.Sequence)
				if err != nil {
					return err
				}
				next = filled
			}
			if err := writeEvent(ctx, conn, record); err != nil {
				return err
			}
			next = record.Sequence + 1
		}
	}
}

// fillGap replays persisted events in [from, to) and returns the next
// expected sequence.
func (s *Server) fillGap(ctx context.Context, conn *websocket.Conn, from, to uint64) (uint64, error) {
	next := from
	for next < to {
		limit := to - next
		if limit > wsGapBatch {
			limit = wsGapBatch
		}
		records, err := s.node.Events(next, int(limit), "")
		if err != nil {
			return next, err
		}
		if len(records) == 0 {
			return next, nil
		}
		for _, record := range records {
			if record.Sequence >= to {
				return next, nil
			}
			if err := writeEvent(ctx, conn, record); err != nil {
				return next, err
			}
			next = record.Sequence + 1
		}
	}
	return next, nil
}

func writeEvent(ctx context.Context, conn *websocket.Conn, record *state.EventRecord) error {
	data, err := json.Marshal(EventResultFrom(record))
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
