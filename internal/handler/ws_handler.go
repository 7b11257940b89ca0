package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/pawfect-live/internal/domain"
	"github.com/weiawesome/pawfect-live/internal/hub"
	"github.com/weiawesome/pawfect-live/internal/identity"
	"github.com/weiawesome/pawfect-live/internal/service"
	pkglog "github.com/weiawesome/pawfect-live/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// WSHandler handles WebSocket connections.
type WSHandler struct {
	hub     *hub.Hub
	service service.SignalService
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(h *hub.Hub, svc service.SignalService) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
	}
}

// HandleWebSocket upgrades the request and wires the connection to the hub
// and the signal service. Identity middleware runs before it.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	l := pkglog.Ctx(c.Request.Context())

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	verified := identity.FromContext(c)
	clientID := uuid.New().String()
	client := hub.NewClient(clientID, h.hub, conn, verified)

	client.SetDisconnectHandler(func(cl *hub.Client) {
		h.service.HandleDisconnect(cl.ID)
	})

	// Queued before registration so it is always the first frame.
	client.SendMessage(&domain.ConnectedMessage{Type: domain.MsgTypeConnected, ClientID: clientID})

	h.hub.Register(client)
	h.service.HandleConnect(clientID, verified)

	go client.WritePump()
	go client.ReadPump(h.handleMessage)
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	h.service.HandleMessage(client.ID, message)
}
