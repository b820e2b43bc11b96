package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

const maxWSMessageBytes = maxSourceBytes + 4096

// wsPrefix starts every websocket session name. REST routes refuse it.
const wsPrefix = "ws-"

// wsRequest is one message from a websocket client. Op is one of "run",
// "output", "clear", "reset" or "version".
type wsRequest struct {
	Op     string `json:"op"`
	Source string `json:"source,omitempty"`
}

type wsResponse struct {
	Op    string       `json:"op"`
	Run   *runResponse `json:"run,omitempty"`
	Text  string       `json:"text,omitempty"`
	Error string       `json:"error,omitempty"`
}

var wsCounter atomic.Uint64

// handleWS gives the connection a private session for its lifetime.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxWSMessageBytes)

	id := fmt.Sprintf("%s%d", wsPrefix, wsCounter.Add(1))
	log := s.log.With(zap.String("session", id), zap.String("remote", r.RemoteAddr))
	log.Info("websocket connected")
	defer log.Info("websocket disconnected")
	defer s.mgr.Remove(id)

	sess, err := s.mgr.Get(id)
	if err != nil {
		_ = conn.Close(websocket.StatusTryAgainLater, err.Error())
		return
	}

	ctx := r.Context()
	for {
		var req wsRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				log.Debug("websocket read", zap.Error(err))
			}
			_ = conn.CloseNow()
			return
		}

		resp := wsResponse{Op: req.Op}
		switch req.Op {
		case "run":
			res := sess.Exec(ctx, req.Source)
			s.record(id, req.Source, res)
			rr := newRunResponse(res)
			resp.Run = &rr
		case "output":
			resp.Text = sess.Output()
		case "clear":
			sess.ClearOutput()
		case "reset":
			if err := sess.Reset(); err != nil {
				resp.Error = err.Error()
			}
		case "version":
			resp.Text = sess.Version()
		default:
			resp.Error = fmt.Sprintf("unknown op %q", req.Op)
		}

		if err := wsjson.Write(ctx, conn, resp); err != nil {
			log.Debug("websocket write", zap.Error(err))
			_ = conn.CloseNow()
			return
		}
	}
}
