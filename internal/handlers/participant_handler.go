package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/InterviewRoom/internal/services"
)

type ParticipantHandler struct {
	ParticipantService *services.ParticipantService
	logger             *zap.Logger
}

func NewParticipantHandler(participantService *services.ParticipantService, logger *zap.Logger) *ParticipantHandler {
	return &ParticipantHandler{ParticipantService: participantService, logger: logger}
}

// JoinRoom 当前用户以 participant 身份加入房间，请求体可省略
func (h *ParticipantHandler) JoinRoom(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	req := services.JoinRoomRequest{DisplayName: c.GetString("user_name")}
	if !bindJSON(c, &req, true) {
		return
	}

	p, err := h.ParticipantService.JoinRoom(c.Request.Context(), c.Param("id"), userID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ParticipantHandler) LeaveRoom(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	if err := h.ParticipantService.LeaveRoom(c.Request.Context(), c.Param("id"), userID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *ParticipantHandler) ListParticipants(c *gin.Context) {
	list, err := h.ParticipantService.ListParticipants(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": list, "count": len(list)})
}

func (h *ParticipantHandler) UpdateRole(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req services.UpdateRoleRequest
	if !bindJSON(c, &req, true) {
		return
	}

	p, err := h.ParticipantService.UpdateParticipantRole(c.Request.Context(), c.Param("id"), c.Param("userId"), req.Role, userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ParticipantHandler) Kick(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	if err := h.ParticipantService.KickParticipant(c.Request.Context(), c.Param("id"), c.Param("userId"), userID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *ParticipantHandler) RefreshCapabilities(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	p, err := h.ParticipantService.RefreshCapabilities(c.Request.Context(), c.Param("id"), c.Param("userId"), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ParticipantHandler) Heartbeat(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	p, err := h.ParticipantService.Heartbeat(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"last_seen": p.LastSeen})
}
