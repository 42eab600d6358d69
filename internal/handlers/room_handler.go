package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/InterviewRoom/internal/models"
	"github.com/Gopher0727/InterviewRoom/internal/services"
)

type RoomHandler struct {
	RoomService *services.RoomService
	logger      *zap.Logger
}

func NewRoomHandler(roomService *services.RoomService, logger *zap.Logger) *RoomHandler {
	return &RoomHandler{RoomService: roomService, logger: logger}
}

// ListRooms 支持 ?type= 与 ?created_by= 过滤
func (h *RoomHandler) ListRooms(c *gin.Context) {
	filter := models.RoomFilter{
		Type:      models.RoomType(c.Query("type")),
		CreatedBy: c.Query("created_by"),
	}
	rooms, err := h.RoomService.ListRooms(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms, "count": len(rooms)})
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req services.CreateRoomRequest
	if !bindJSON(c, &req, false) {
		return
	}

	room, err := h.RoomService.CreateRoom(c.Request.Context(), &req, userID, c.GetString("user_name"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": room.ID, "room": room})
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	detail, err := h.RoomService.GetRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// UpdateRoom 只接受 name/description/type，其他字段忽略
func (h *RoomHandler) UpdateRoom(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req services.UpdateRoomRequest
	if !bindJSON(c, &req, false) {
		return
	}

	room, err := h.RoomService.UpdateRoom(c.Request.Context(), c.Param("id"), &req, userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	if err := h.RoomService.DeleteRoom(c.Request.Context(), c.Param("id"), userID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *RoomHandler) ResetStats(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	room, err := h.RoomService.ResetStats(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, room)
}
