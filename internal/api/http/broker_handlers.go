package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openharmony/window-window-manager-sub028/internal/broker"
)

// BrokerHandlers drive a reference broker.
type BrokerHandlers struct {
	server *broker.Server
}

// NewBrokerHandlers creates handlers over server.
func NewBrokerHandlers(server *broker.Server) *BrokerHandlers {
	return &BrokerHandlers{server: server}
}

// Register adds the broker routes to r.
func (h *BrokerHandlers) Register(r gin.IRouter) {
	r.GET("/sessions", h.ListSessions)
	r.GET("/listeners", h.ListListeners)
	r.POST("/users", h.AddUser)
	r.POST("/users/:user/switch", h.SwitchUser)
	r.POST("/users/:user/restart", h.RestartSession)
	r.POST("/users/:user/disconnect", h.Disconnect)
	r.GET("/users/:user/session_listeners", h.ListSessionListeners)
}

// ListSessions returns every user session.
func (h *BrokerHandlers) ListSessions(c *gin.Context) {
	bb := h.server.Bootstrap()
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"default_user": bb.DefaultUser(),
		"sessions":     bb.Sessions(),
	})
}

// ListListeners returns the registered recover listeners.
func (h *BrokerHandlers) ListListeners(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"listeners": h.server.Bootstrap().Listeners(),
	})
}

// ListSessionListeners returns the session listeners registered with a
// user's lite domain service.
func (h *BrokerHandlers) ListSessionListeners(c *gin.Context) {
	userID, ok := userParam(c)
	if !ok {
		return
	}
	listeners, err := h.server.SessionListeners(userID)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}

	type listenerView struct {
		Descriptor string `json:"descriptor"`
		Recovered  bool   `json:"recovered"`
	}
	views := make([]listenerView, 0, len(listeners))
	for _, l := range listeners {
		views = append(views, listenerView{Descriptor: l.Handle.Descriptor(), Recovered: l.Recovered})
	}
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"user_id":           userID,
		"session_listeners": views,
	})
}

// AddUser connects a user, publishing its session broker.
func (h *BrokerHandlers) AddUser(c *gin.Context) {
	var req struct {
		UserID   int32 `json:"user_id" binding:"required"`
		ScreenID int32 `json:"screen_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	if err := h.server.AddUser(c.Request.Context(), req.UserID, req.ScreenID); err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"user_id": req.UserID,
	})
}

// SwitchUser makes a connected user the default.
func (h *BrokerHandlers) SwitchUser(c *gin.Context) {
	h.userAction(c, h.server.SwitchUser)
}

// RestartSession replaces a user's session broker and pushes the recovery.
func (h *BrokerHandlers) RestartSession(c *gin.Context) {
	h.userAction(c, h.server.RestartSession)
}

// Disconnect disconnects a user.
func (h *BrokerHandlers) Disconnect(c *gin.Context) {
	h.userAction(c, h.server.Disconnect)
}

func (h *BrokerHandlers) userAction(c *gin.Context, action func(ctx context.Context, userID int32) error) {
	userID, ok := userParam(c)
	if !ok {
		return
	}
	if err := action(c.Request.Context(), userID); err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user_id": userID,
	})
}
