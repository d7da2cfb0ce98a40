package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/services"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Frame types sent by the server.
const (
	frameTick   = "tick"
	frameAck    = "ack"
	frameResult = "result"
	frameError  = "error"
	frameClosed = "closed"
)

// Message types sent by the client.
const (
	messageAnswer = "answer"
	messageSubmit = "submit"
)

type countdownFrame struct {
	Type          string                `json:"type"`
	RemainingSec  *int                  `json:"remaining_sec,omitempty"`
	QuestionID    string                `json:"question_id,omitempty"`
	Result        *models.AttemptResult `json:"result,omitempty"`
	AutoSubmitted bool                  `json:"auto_submitted,omitempty"`
	Error         *ErrorResponse        `json:"error,omitempty"`
}

type countdownMessage struct {
	Type       string           `json:"type"`
	QuestionID string           `json:"question_id,omitempty"`
	Answer     models.Answer    `json:"answer"`
	Answers    models.AnswerSet `json:"answers,omitempty"`
}

type CountdownHandler struct {
	BaseHandler
	timers   *services.TimerCoordinator
	upgrader websocket.Upgrader
}

func NewCountdownHandler(timers *services.TimerCoordinator, logger utils.Logger) *CountdownHandler {
	return &CountdownHandler{
		BaseHandler: NewBaseHandler(logger),
		timers:      timers,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The Mini-App is served from Telegram's web view origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Countdown binds a timer session to a WebSocket for the life of the
// connection. Closing the socket stops the session.
// @Router /attempts/{id}/countdown [get]
func (h *CountdownHandler) Countdown(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	p, ok := h.principal(c)
	if !ok {
		return
	}

	session, err := h.timers.Begin(c.Request.Context(), id, p.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	defer session.Stop()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.LogError(c, err, "WebSocket upgrade failed", "attempt_id", id)
		return
	}
	defer conn.Close()

	log := h.log(c).With("attempt_id", id, "student_id", p.ID)
	log.Info("Countdown connected")

	replies := make(chan countdownFrame, 8)
	quit := make(chan struct{})
	readDone := make(chan struct{})
	defer close(quit)

	go h.readPump(conn, session, replies, quit, readDone, log)
	h.writePump(conn, session, replies, readDone, log)
}

func (h *CountdownHandler) readPump(conn *websocket.Conn, session *services.TimerSession, replies chan<- countdownFrame, quit <-chan struct{}, done chan<- struct{}, log utils.Logger) {
	defer close(done)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	reply := func(f countdownFrame) {
		select {
		case replies <- f:
		case <-quit:
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("Countdown read failed", "error", err)
			}
			return
		}

		var msg countdownMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			reply(countdownFrame{Type: frameError, Error: &ErrorResponse{Message: "Malformed message", Code: "bad_message"}})
			continue
		}

		// Each client frame gets its own deadline; a closing socket must not
		// abort a store write midway.
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		switch msg.Type {
		case messageAnswer:
			err := session.RecordAnswer(ctx, &models.RecordAnswerRequest{QuestionID: msg.QuestionID, Answer: msg.Answer})
			if err != nil {
				reply(errorFrame(err))
			} else {
				reply(countdownFrame{Type: frameAck, QuestionID: msg.QuestionID})
			}
		case messageSubmit:
			// Success is reported by the final frame once the session ends.
			if _, err := session.Submit(ctx, msg.Answers); err != nil && session.Outcome() == nil {
				reply(errorFrame(err))
			}
		default:
			reply(countdownFrame{Type: frameError, Error: &ErrorResponse{Message: "Unknown message type", Code: "bad_message"}})
		}
		cancel()
	}
}

func (h *CountdownHandler) writePump(conn *websocket.Conn, session *services.TimerSession, replies <-chan countdownFrame, readDone <-chan struct{}, log utils.Logger) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case tick, ok := <-session.Ticks():
			if !ok {
				final := finalFrame(session.Outcome())
				if err := writeFrame(conn, final); err != nil {
					log.Debug("Final frame not delivered", "error", err)
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, final.Type))
				log.Info("Countdown finished", "final", final.Type)
				return
			}
			remaining := tick.RemainingSec
			if err := writeFrame(conn, countdownFrame{Type: frameTick, RemainingSec: &remaining}); err != nil {
				return
			}
		case f := <-replies:
			if err := writeFrame(conn, f); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			log.Info("Countdown disconnected")
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, f countdownFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(f)
}

func errorFrame(err error) countdownFrame {
	_, resp := describeError(err)
	return countdownFrame{Type: frameError, Error: &resp}
}

func finalFrame(o *services.SessionOutcome) countdownFrame {
	switch {
	case o == nil:
		return countdownFrame{Type: frameClosed}
	case o.Err != nil:
		f := errorFrame(o.Err)
		f.AutoSubmitted = o.AutoSubmitted
		return f
	default:
		return countdownFrame{Type: frameResult, Result: o.Result, AutoSubmitted: o.AutoSubmitted}
	}
}
