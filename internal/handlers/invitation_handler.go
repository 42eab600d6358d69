package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/InterviewRoom/internal/services"
)

// InvitationHandler serves both sides of the guest flow. Host routes sit
// behind JWT auth; guest routes are public and the code is the credential.
type InvitationHandler struct {
	InvitationService *services.InvitationService
	logger            *zap.Logger
}

func NewInvitationHandler(invitationService *services.InvitationService, logger *zap.Logger) *InvitationHandler {
	return &InvitationHandler{InvitationService: invitationService, logger: logger}
}

func (h *InvitationHandler) CreateInvitation(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req services.CreateInvitationRequest
	if !bindJSON(c, &req, true) {
		return
	}

	inv, err := h.InvitationService.CreateInvitation(c.Request.Context(), c.Param("id"), userID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (h *InvitationHandler) ListWaiting(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	guests, err := h.InvitationService.ListWaiting(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"waiting": guests, "count": len(guests)})
}

func (h *InvitationHandler) AdmitGuest(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	p, err := h.InvitationService.AdmitGuest(c.Request.Context(), c.Param("id"), c.Param("participantId"), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *InvitationHandler) RejectGuest(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	g, err := h.InvitationService.RejectGuest(c.Request.Context(), c.Param("id"), c.Param("participantId"), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

type verifyCodeRequest struct {
	Code string `json:"code"`
}

func (h *InvitationHandler) VerifyCode(c *gin.Context) {
	var req verifyCodeRequest
	if !bindJSON(c, &req, false) {
		return
	}
	summary, err := h.InvitationService.VerifyJoinCode(c.Request.Context(), req.Code)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *InvitationHandler) GuestJoin(c *gin.Context) {
	var req services.GuestJoinRequest
	if !bindJSON(c, &req, false) {
		return
	}
	res, err := h.InvitationService.JoinRoom(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *InvitationHandler) GetInvitation(c *gin.Context) {
	inv, err := h.InvitationService.GetInvitation(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *InvitationHandler) AcceptInvitation(c *gin.Context) {
	var req services.AcceptInvitationRequest
	if !bindJSON(c, &req, true) {
		return
	}
	res, err := h.InvitationService.AcceptInvitation(c.Request.Context(), c.Param("token"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *InvitationHandler) DeclineInvitation(c *gin.Context) {
	inv, err := h.InvitationService.DeclineInvitation(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *InvitationHandler) GuestStatus(c *gin.Context) {
	status, err := h.InvitationService.GetWaitingRoomStatus(c.Request.Context(), c.Param("participantId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *InvitationHandler) GuestLeave(c *gin.Context) {
	if err := h.InvitationService.LeaveRoom(c.Request.Context(), c.Param("participantId")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
