package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"stele/indexer"
)

const (
	wsWriteTimeout = 10 * time.Second
)

// handleEventsWS replays indexed events after ?cursor= and then streams new
// ones as they are indexed. Optional type, challenge and participant query
// parameters narrow the stream.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		http.Error(w, "event index not configured", http.StatusServiceUnavailable)
		return
	}
	filter, err := streamFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			s.logger.Debug("event stream ended", slog.Any("error", err))
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamFilter(r *http.Request) (indexer.Filter, error) {
	q := r.URL.Query()
	filter := indexer.Filter{
		Type:        strings.TrimSpace(q.Get("type")),
		Participant: strings.TrimSpace(q.Get("participant")),
	}
	if raw := strings.TrimSpace(q.Get("cursor")); raw != "" {
		cursor, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return filter, &RPCError{Code: codeInvalidParams, Message: "cursor must be a sequence number"}
		}
		filter.AfterSeq = cursor
	}
	if raw := strings.TrimSpace(q.Get("challenge")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return filter, &RPCError{Code: codeInvalidParams, Message: "challenge must be an id"}
		}
		filter.ChallengeID = id
	}
	return filter, nil
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, filter indexer.Filter) error {
	backlog, updates, cancel, err := s.events.Subscribe(ctx, filter)
	if err != nil {
		return err
	}
	defer cancel()

	for _, rec := range backlog {
		if err := writeEventRecord(ctx, conn, rec); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-updates:
			if !ok {
				return conn.Close(websocket.StatusTryAgainLater, "subscriber lagging")
			}
			if err := writeEventRecord(ctx, conn, rec); err != nil {
				return err
			}
		}
	}
}

func writeEventRecord(ctx context.Context, conn *websocket.Conn, rec indexer.EventRecord) error {
	payload, err := eventResult(rec)
	if err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
