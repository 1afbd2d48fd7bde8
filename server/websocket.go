package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/eezybuild/eezybuild/internal/models"
	"github.com/eezybuild/eezybuild/pkg/apierr"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the websocket envelope in both directions.
type Message struct {
	Type           string                 `json:"type"`
	Content        string                 `json:"content,omitempty"`
	ProjectContext *models.ProjectContext `json:"projectContext,omitempty"`
	Data           any                    `json:"data,omitempty"`
}

// wsConn serialises writes; gorilla connections allow one writer at a time.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ws := &wsConn{conn: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("error reading websocket message", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendMessage(ws, Message{Type: "error", Content: apierr.UserMessage(apierr.InvalidInput)})
			continue
		}

		switch msg.Type {
		case "chat":
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.handleMessage(ctx, ws, msg)
			}()
		case "ping":
			s.sendMessage(ws, Message{Type: "pong"})
		default:
			s.sendMessage(ws, Message{Type: "error", Content: "unsupported message type"})
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, ws *wsConn, msg Message) {
	if s.chat == nil {
		s.sendMessage(ws, Message{Type: "error", Content: apierr.UserMessage(apierr.MissingConfiguration)})
		return
	}

	status := "Searching the UK Building Regulations..."
	if msg.ProjectContext != nil {
		status = "Reviewing your project and the UK Building Regulations..."
	}
	s.sendMessage(ws, Message{Type: "status", Content: status})

	answer, err := s.chat.Answer(ctx, strings.TrimSpace(msg.Content), msg.ProjectContext)
	if err != nil {
		s.sendMessage(ws, Message{Type: "error", Content: apierr.UserMessage(apierr.KindOf(err))})
		return
	}
	s.sendMessage(ws, Message{Type: "response", Data: answer})
}

func (s *Server) sendMessage(ws *wsConn, msg Message) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if err := ws.conn.WriteJSON(msg); err != nil {
		s.log.Warn("error sending websocket message", "type", msg.Type, "error", err)
	}
}
