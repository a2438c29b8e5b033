package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"attune/internal/converge"
)

const (
	watchWriteWait = 10 * time.Second
	watchPongWait  = 60 * time.Second
	watchPingEvery = (watchPongWait * 9) / 10
)

var watchUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type watchInbound struct {
	Type string `json:"type"`
}

type watchOutbound struct {
	Type  string          `json:"type"`
	RunID string          `json:"run_id,omitempty"`
	Event *converge.Event `json:"event,omitempty"`
}

// handleWatch upgrades to a websocket and forwards run progress events.
// An optional run_id query narrows the stream; the socket then closes
// itself after that run finishes.
func (h *Handler) handleWatch(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.URL.Query().Get("run_id"))

	conn, err := watchUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(watchPongWait)); err != nil {
		h.log.Debug("watch set read deadline failed", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(watchPongWait))
	})

	// Force the blocked read loop out once the context ends.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	writeCh := make(chan watchOutbound, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(watchPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(watchWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
				if out.Type == "close" {
					cancel()
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(watchWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	events, unsubscribe := h.hub.Subscribe(runID)
	defer unsubscribe()

	pushWatch(writeCh, watchOutbound{Type: "subscribed", RunID: runID})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				e := ev
				pushWatch(writeCh, watchOutbound{Type: "event", RunID: ev.RunID, Event: &e})
				if runID != "" && ev.Kind == converge.EventRunFinished {
					pushWatch(writeCh, watchOutbound{Type: "close", RunID: runID})
					return
				}
			}
		}
	}()

	for {
		var in watchInbound
		if err := conn.ReadJSON(&in); err != nil {
			cancel()
			<-writerDone
			return
		}
		switch strings.ToLower(strings.TrimSpace(in.Type)) {
		case "ping":
			pushWatch(writeCh, watchOutbound{Type: "pong"})
		case "close":
			cancel()
			<-writerDone
			return
		default:
			pushWatch(writeCh, watchOutbound{Type: "error", RunID: runID})
		}
	}
}

// pushWatch enqueues without blocking, dropping the oldest queued frame
// when the writer cannot keep up.
func pushWatch(writeCh chan watchOutbound, out watchOutbound) {
	select {
	case writeCh <- out:
		return
	default:
	}
	select {
	case <-writeCh:
	default:
	}
	select {
	case writeCh <- out:
	default:
	}
}
