package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"quiz-arena-service/internal/app"
	"quiz-arena-service/internal/auth"
	"quiz-arena-service/internal/domain"
)

type WSHandler struct {
	service  *app.GameService
	bus      *app.Broadcaster
	issuer   *auth.Issuer
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService, bus *app.Broadcaster, issuer *auth.Issuer, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		service: service,
		bus:     bus,
		issuer:  issuer,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type readyPayload struct {
	Ready *bool `json:"ready"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorBody(err)}
}

func protocolError(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "bad_request", Message: msg}}
}

// ServeWS authenticates the caller, joins them to the room and relays room events until
// the socket closes. Closing the socket does not leave the room; clients reconnect and
// receive a fresh snapshot.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	claims, err := h.issuer.Verify(requestToken(r))
	if err != nil {
		http.Error(w, "missing or invalid token", http.StatusUnauthorized)
		return
	}
	playerID := claims.Subject

	roomID, err := h.resolveRoom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.service.Join(r.Context(), roomID, playerID); err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()
	// the server read/write timeouts survive the hijack
	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})

	log := h.log.WithFields(logrus.Fields{"room_id": roomID, "player_id": playerID, "remote": r.RemoteAddr})
	log.Info("WebSocket connected")

	// subscribe before the snapshot so no event between the two is lost
	updates, cancel := h.bus.Subscribe(roomID)
	defer cancel()

	ctx := r.Context()
	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("ws write error")
				// drain so senders never block
				_ = conn.Close()
				for range send {
				}
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case evt, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "event", Payload: evt}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	h.sendSnapshot(ctx, send, roomID, playerID)

	var readErr error
	for {
		var inbound inboundMessage
		if readErr = conn.ReadJSON(&inbound); readErr != nil {
			break
		}
		if done := h.handleFrame(ctx, send, roomID, playerID, inbound); done {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone

	fields := logrus.Fields{}
	if readErr != nil && !websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		fields["error"] = readErr
	}
	log.WithFields(fields).Info("WebSocket disconnected")
}

// handleFrame applies one client frame. It reports whether the connection should close.
func (h *WSHandler) handleFrame(ctx context.Context, send chan<- outboundMessage[any], roomID, playerID string, in inboundMessage) bool {
	switch in.Type {
	case "ready":
		var payload readyPayload
		if len(in.Payload) > 0 {
			if err := json.Unmarshal(in.Payload, &payload); err != nil {
				send <- protocolError("invalid ready payload")
				return false
			}
		}
		ready := payload.Ready == nil || *payload.Ready
		if _, err := h.service.SetReady(ctx, roomID, playerID, ready); err != nil {
			send <- errorMessage(err)
		}
	case "start":
		if _, err := h.service.Start(ctx, roomID, playerID); err != nil {
			send <- errorMessage(err)
		}
	case "answer":
		var sub domain.Submission
		if err := json.Unmarshal(in.Payload, &sub); err != nil || sub.QuestionID == "" {
			send <- protocolError("invalid answer payload")
			return false
		}
		verdict, err := h.service.Submit(ctx, roomID, playerID, sub)
		if err != nil {
			send <- errorMessage(err)
			return false
		}
		send <- outboundMessage[any]{Type: "answerResult", Payload: verdict}
	case "leave":
		if err := h.service.Leave(ctx, roomID, playerID); err != nil && !errors.Is(err, domain.ErrRoomTerminal) {
			send <- errorMessage(err)
			return false
		}
		return true
	case "sync":
		h.sendSnapshot(ctx, send, roomID, playerID)
	default:
		send <- protocolError("unsupported message type")
	}
	return false
}

func (h *WSHandler) sendSnapshot(ctx context.Context, send chan<- outboundMessage[any], roomID, playerID string) {
	snap, err := h.service.Snapshot(ctx, roomID, playerID)
	if err != nil {
		send <- errorMessage(err)
		return
	}
	send <- outboundMessage[any]{Type: "snapshot", Payload: snap}
}

func (h *WSHandler) resolveRoom(r *http.Request) (string, error) {
	q := r.URL.Query()
	if id := q.Get("roomId"); id != "" {
		return id, nil
	}
	if code := q.Get("code"); code != "" {
		room, err := h.service.FindByCode(r.Context(), code)
		if err != nil {
			return "", err
		}
		return room.ID, nil
	}
	return "", domain.ErrRoomNotFound
}
