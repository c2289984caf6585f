package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/afterword/afterword/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 64,
	WriteBufferSize: 1024 * 64,
	CheckOrigin:     allowedOrigin,
}

// WebSocket message types from client.
const (
	wsMsgSetContent    = "set_content"
	wsMsgSetPrompt     = "set_prompt"
	wsMsgSetReflection = "set_reflection"
	wsMsgMark          = "mark"
	wsMsgNote          = "note"
	wsMsgClearMark     = "clear_mark"
	wsMsgSave          = "save"
	wsMsgSubmit        = "submit"
	wsMsgRevert        = "revert"
	wsMsgOpenVersion   = "open_version"
	wsMsgLoadMore      = "load_more"
	wsMsgReload        = "reload"
	wsMsgRestoreDraft  = "restore_draft"
)

// WebSocket message types to client.
const (
	wsMsgState = "state"
	wsMsgError = "error"
)

const wsWriteTimeout = 10 * time.Second

// wsMessage is the envelope for WebSocket messages in both directions.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wsText struct {
	Text string `json:"text"`
}

type wsVersion struct {
	Version int `json:"version"`
}

// wsConn serializes writes; the gorilla connection allows one writer.
type wsConn struct {
	conn *websocket.Conn
	out  chan wsMessage
	s    *Server
}

func (c *wsConn) send(msgType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		c.s.log.Error("ws marshal", "err", err)
		return
	}
	select {
	case c.out <- wsMessage{Type: msgType, Data: raw}:
	default:
		c.s.log.Warn("ws outbound queue full, dropping message", "type", msgType)
	}
}

func (c *wsConn) sendError(err error) {
	_, e := statusFor(err)
	c.send(wsMsgError, e)
}

func (c *wsConn) sendErrorText(msg string) {
	c.send(wsMsgError, errorJSON{Kind: "bad_request", Message: msg})
}

// writeLoop owns the connection's write side. It forwards session states
// and queued replies until ctx is done.
func (c *wsConn) writeLoop(ctx context.Context, states <-chan session.State) {
	for {
		var msg wsMessage
		select {
		case <-ctx.Done():
			return
		case st := <-states:
			raw, err := json.Marshal(toStateJSON(st))
			if err != nil {
				c.s.log.Error("ws marshal", "err", err)
				continue
			}
			msg = wsMessage{Type: wsMsgState, Data: raw}
		case msg = <-c.out:
		}
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			c.s.log.Debug("ws write", "err", err)
			return
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	workID := r.URL.Query().Get("work")
	if workID == "" {
		writeError(w, http.StatusBadRequest, "work query parameter is required")
		return
	}
	sess, err := s.manager.Open(r.Context(), workID)
	if err != nil {
		writeSessionError(w, nil, err)
		return
	}
	states, unsubscribe, ok := s.manager.Subscribe(workID)
	if !ok {
		writeError(w, http.StatusGone, "session closed")
		return
	}
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &wsConn{conn: conn, out: make(chan wsMessage, 16), s: s}
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writeLoop(ctx, states)
	}()
	c.send(wsMsgState, toStateJSON(sess.State()))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("websocket read", "err", err)
			}
			break
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendErrorText("invalid message format")
			continue
		}
		s.handleWSIntent(ctx, c, sess, msg)
	}

	cancel()
	<-done
}

// handleWSIntent applies one client intent. Network operations run
// inline, so a connection's intents apply in order.
func (s *Server) handleWSIntent(ctx context.Context, c *wsConn, sess *session.Session, msg wsMessage) {
	var err error
	switch msg.Type {
	case wsMsgSetContent, wsMsgSetPrompt, wsMsgSetReflection:
		var req wsText
		if json.Unmarshal(msg.Data, &req) != nil {
			c.sendErrorText("invalid " + msg.Type + " data")
			return
		}
		switch msg.Type {
		case wsMsgSetContent:
			err = sess.SetContent(req.Text)
		case wsMsgSetPrompt:
			err = sess.SetEssayPrompt(req.Text)
		default:
			err = sess.SetReflectionDraft(req.Text)
		}
	case wsMsgMark, wsMsgNote, wsMsgClearMark:
		var req markingRequest
		if json.Unmarshal(msg.Data, &req) != nil || req.CommentID == "" {
			c.sendErrorText("invalid " + msg.Type + " data")
			return
		}
		switch msg.Type {
		case wsMsgClearMark:
			err = sess.ClearMarking(req.CommentID)
		case wsMsgNote:
			note := ""
			if req.Note != nil {
				note = *req.Note
			}
			err = sess.SetSuggestionNote(req.CommentID, note)
		default:
			err = applyMarking(sess, req)
		}
	case wsMsgSave:
		var req saveRequest
		if len(msg.Data) > 0 && json.Unmarshal(msg.Data, &req) != nil {
			c.sendErrorText("invalid save data")
			return
		}
		err = sess.Save(ctx, req.AutoSave)
	case wsMsgSubmit:
		var req submitRequest
		if len(msg.Data) > 0 && json.Unmarshal(msg.Data, &req) != nil {
			c.sendErrorText("invalid submit data")
			return
		}
		reflection := sess.State().ReflectionDraft
		if req.Reflection != nil {
			reflection = *req.Reflection
		}
		_, err = sess.Submit(ctx, reflection)
	case wsMsgRevert, wsMsgOpenVersion:
		var req wsVersion
		if json.Unmarshal(msg.Data, &req) != nil || req.Version <= 0 {
			c.sendErrorText("invalid " + msg.Type + " data")
			return
		}
		if msg.Type == wsMsgRevert {
			_, err = sess.Revert(ctx, req.Version)
		} else {
			_, err = sess.OpenVersion(ctx, req.Version)
		}
	case wsMsgLoadMore:
		err = sess.LoadMoreVersions(ctx)
	case wsMsgReload:
		err = sess.LoadAll(ctx)
	case wsMsgRestoreDraft:
		_, err = sess.RestoreDraft()
	default:
		c.sendErrorText("unknown message type: " + msg.Type)
		return
	}
	if err != nil {
		c.sendError(err)
	}
}
