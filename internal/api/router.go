package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/InterviewRoom/internal/handlers"
	"github.com/Gopher0727/InterviewRoom/utils/ratelimit"
)

type Handlers struct {
	Rooms        *handlers.RoomHandler
	Participants *handlers.ParticipantHandler
	Settings     *handlers.SettingsHandler
	Invitations  *handlers.InvitationHandler
}

// NewRouter builds the gin engine with the global middleware chain and all
// routes registered.
func NewRouter(mw *MiddlewareManager, h *Handlers, maxConcurrency int) *gin.Engine {
	r := gin.New()
	r.Use(
		mw.Trace(),
		mw.Logger(),
		mw.Recovery(),
		mw.CORS(),
		mw.MaxConcurrency(maxConcurrency),
	)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	RegisterRoutes(r, mw, h)
	return r
}

// RegisterRoutes registers all API routes
func RegisterRoutes(r *gin.Engine, mw *MiddlewareManager, h *Handlers) {
	api := r.Group("/api/v1")

	// guest routes are public and limited per IP
	guest := api.Group("/guest")
	{
		guest.POST("/verify-code", mw.RateLimit(ratelimit.EndpointVerify), h.Invitations.VerifyCode)
		guest.POST("/join", mw.RateLimit(ratelimit.EndpointJoin), h.Invitations.GuestJoin)

		guest.GET("/invitation/:token", mw.RateLimit(ratelimit.EndpointVerify), h.Invitations.GetInvitation)
		guest.POST("/invitation/:token/accept", mw.RateLimit(ratelimit.EndpointJoin), h.Invitations.AcceptInvitation)
		guest.POST("/invitation/:token/decline", mw.RateLimit(ratelimit.EndpointJoin), h.Invitations.DeclineInvitation)

		guest.GET("/participant/:participantId/status", mw.RateLimit(ratelimit.EndpointStatus), h.Invitations.GuestStatus)
		guest.POST("/participant/:participantId/leave", mw.RateLimit(ratelimit.EndpointStatus), h.Invitations.GuestLeave)
	}

	rooms := api.Group("/rooms")
	rooms.Use(mw.JWTAuth(), mw.RateLimit(ratelimit.EndpointAPI))
	{
		rooms.GET("", h.Rooms.ListRooms)
		rooms.POST("", h.Rooms.CreateRoom)
		rooms.GET("/:id", h.Rooms.GetRoom)
		rooms.PUT("/:id", h.Rooms.UpdateRoom)
		rooms.DELETE("/:id", h.Rooms.DeleteRoom)
		rooms.POST("/:id/stats/reset", h.Rooms.ResetStats)

		rooms.POST("/:id/join", h.Participants.JoinRoom)
		rooms.POST("/:id/leave", h.Participants.LeaveRoom)
		rooms.POST("/:id/heartbeat", h.Participants.Heartbeat)
		rooms.GET("/:id/participants", h.Participants.ListParticipants)
		rooms.PUT("/:id/participants/:userId", h.Participants.UpdateRole)
		rooms.DELETE("/:id/participants/:userId", h.Participants.Kick)
		rooms.POST("/:id/participants/:userId/refresh", h.Participants.RefreshCapabilities)

		rooms.GET("/:id/settings", h.Settings.GetSettings)
		rooms.PUT("/:id/settings", h.Settings.UpdateSettings)

		rooms.POST("/:id/invitations", mw.RateLimit(ratelimit.EndpointInvite), h.Invitations.CreateInvitation)
		rooms.GET("/:id/waiting", h.Invitations.ListWaiting)
		rooms.POST("/:id/waiting/:participantId/admit", h.Invitations.AdmitGuest)
		rooms.POST("/:id/waiting/:participantId/reject", h.Invitations.RejectGuest)
	}
}
