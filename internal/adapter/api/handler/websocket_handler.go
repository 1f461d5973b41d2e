package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"workbee/internal/domain/repository"
	ws "workbee/internal/infrastructure/websocket"
	"workbee/internal/usecase"
	"workbee/pkg/logger"
	"workbee/pkg/response"
)

type WebSocketHandler struct {
	wsManager           *ws.Manager
	conversationUseCase *usecase.ConversationUseCase
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func NewWebSocketHandler(wsManager *ws.Manager, conversationUseCase *usecase.ConversationUseCase) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager:           wsManager,
		conversationUseCase: conversationUseCase,
	}
}

// HandleWebSocket opens the caller's notification socket.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Warn("Websocket upgrade failed for %s: %v", userID, err)
		return nil
	}

	client := ws.NewClient(userID, conn)
	h.wsManager.Add(client)

	go client.WritePump()
	go client.ReadPump(func() {
		h.wsManager.Remove(client)
	})
	return nil
}

// StreamConversation replays messages after ?after=N in seq order and then
// follows new and modified messages until the socket closes. Clients resume
// by reconnecting with the last seq they saw.
func (h *WebSocketHandler) StreamConversation(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	after, err := afterParam(c)
	if err != nil {
		return response.Error(c, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	events, err := h.conversationUseCase.StreamOrdered(ctx, c.Param("id"), userID, after)
	if err != nil {
		cancel()
		return response.Error(c, err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		cancel()
		logger.Warn("Websocket upgrade failed for %s: %v", userID, err)
		return nil
	}

	client := ws.NewClient(userID, conn)
	go client.WritePump()
	go client.ReadPump(cancel)
	go pumpMessageEvents(ctx, events, client)
	return nil
}

// pumpMessageEvents is the only writer to client.Send, so it closes it once
// the watch ends.
func pumpMessageEvents(ctx context.Context, events <-chan repository.MessageEvent, client *ws.Client) {
	defer close(client.Send)
	for event := range events {
		payload, err := json.Marshal(ws.Envelope{
			Type:      "message." + string(event.Type),
			Data:      event.Message,
			Timestamp: time.Now(),
		})
		if err != nil {
			logger.Error("Failed to encode stream event for %s: %v", client.UserID, err)
			continue
		}
		select {
		case client.Send <- payload:
		case <-ctx.Done():
			return
		}
	}
}
