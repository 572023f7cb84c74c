package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"settld/internal/domain"
	"settld/internal/notification"
	"settld/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type StreamMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// StreamHandler pushes processed transactions to websocket clients.
type StreamHandler struct {
	hub    *notification.Hub
	logger logger.Logger
}

func NewStreamHandler(hub *notification.Hub, log logger.Logger) *StreamHandler {
	return &StreamHandler{hub: hub, logger: log}
}

func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe()
	defer sub.Close()

	h.logger.Info("WebSocket client connected", map[string]interface{}{"subscriber_id": sub.ID.String()})

	// Reader goroutine only services control frames and detects disconnects.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(streamWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(StreamMessage{
				Type:      "transaction.processed",
				Timestamp: time.Now().UTC(),
				Data:      newEventPayload(event),
			}); err != nil {
				h.logger.Warn("Failed to send stream event", map[string]interface{}{"error": err.Error()})
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		case <-closed:
			h.logger.Info("WebSocket client disconnected", map[string]interface{}{"subscriber_id": sub.ID.String()})
			return
		case <-r.Context().Done():
			return
		}
	}
}

func newEventPayload(event domain.TransactionProcessed) TransactionResponse {
	processedAt := event.ProcessedAt.UTC()
	return TransactionResponse{
		TransactionID:      event.TransactionID,
		SourceAccount:      event.SourceAccount,
		DestinationAccount: event.DestinationAccount,
		Amount:             json.Number(event.Amount.String()),
		Currency:           event.Currency,
		Status:             domain.TransactionStatusProcessed,
		CreatedAt:          event.CreatedAt.UTC(),
		ProcessedAt:        &processedAt,
	}
}
