package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/pawfect-live/internal/config"
	"github.com/weiawesome/pawfect-live/internal/identity"
	"github.com/weiawesome/pawfect-live/internal/service"
	"github.com/weiawesome/pawfect-live/pkg/log"
	"github.com/weiawesome/pawfect-live/pkg/response"
)

const fallbackSTUN = "stun:stun.l.google.com:19302"

// Handler serves the hub's HTTP surface.
type Handler struct {
	ws         *WSHandler
	service    service.SignalService
	identity   *identity.Provider
	iceServers []config.ICEServer
}

// NewHandler creates a new HTTP handler.
func NewHandler(ws *WSHandler, svc service.SignalService, provider *identity.Provider, iceServers []config.ICEServer) *Handler {
	return &Handler{
		ws:         ws,
		service:    svc,
		identity:   provider,
		iceServers: iceServers,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/ws", h.identity.OptionalAuth(), h.ws.HandleWebSocket)

	api := r.Group("/api/v1")
	{
		api.GET("/ice-servers", h.ICEServers)
		api.GET("/live-rooms", h.LiveRooms)

		rooms := api.Group("/rooms")
		{
			rooms.GET("/:room_id", h.GetRoom)
			rooms.GET("/:room_id/live", h.CheckLive)
		}
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// CheckLive reports whether a room is live without joining it.
func (h *Handler) CheckLive(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	roomID := c.Param("room_id")
	status, err := h.service.CheckLive(ctx, roomID)
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to check live status")
		h.serviceError(c, err)
		return
	}

	response.Success(c, status)
}

// GetRoom returns the room snapshot.
func (h *Handler) GetRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	roomID := c.Param("room_id")
	snap, err := h.service.RoomSnapshot(ctx, roomID)
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			response.NotFound(c, "room not found")
			return
		}
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to get room")
		h.serviceError(c, err)
		return
	}

	response.Success(c, snap)
}

// LiveRooms lists rooms that currently have a broadcaster.
func (h *Handler) LiveRooms(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	rooms, err := h.service.LiveRooms(ctx)
	if err != nil {
		l.Error().Err(err).Msg("failed to list live rooms")
		h.serviceError(c, err)
		return
	}

	response.Success(c, rooms)
}

// ICEServers returns the ICE server configuration, always including a STUN
// server.
func (h *Handler) ICEServers(c *gin.Context) {
	servers := h.iceServers

	hasSTUN := false
	for _, s := range servers {
		for _, url := range s.URLs {
			if strings.HasPrefix(url, "stun:") || strings.HasPrefix(url, "stuns:") {
				hasSTUN = true
				break
			}
		}
	}
	if !hasSTUN {
		servers = append([]config.ICEServer{{URLs: []string{fallbackSTUN}}}, servers...)
	}

	response.Success(c, gin.H{"ice_servers": servers})
}

func (h *Handler) serviceError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrStopped) {
		response.Unavailable(c, "signal service is shutting down")
		return
	}
	response.InternalError(c, "internal error")
}
