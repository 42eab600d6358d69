package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/InterviewRoom/internal/services"
)

type SettingsHandler struct {
	SettingsService *services.SettingsService
	logger          *zap.Logger
}

func NewSettingsHandler(settingsService *services.SettingsService, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{SettingsService: settingsService, logger: logger}
}

func (h *SettingsHandler) GetSettings(c *gin.Context) {
	settings, err := h.SettingsService.GetSettings(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateSettings 按 key 合并，未出现的 key 保持原值
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var patch map[string]json.RawMessage
	if !bindJSON(c, &patch, false) {
		return
	}

	settings, err := h.SettingsService.UpdateSettings(c.Request.Context(), c.Param("id"), patch, userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}
