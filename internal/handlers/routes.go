package handlers

import (
	"net/http"

	"familypoints/internal/metrics"
	"familypoints/internal/security"
	"familypoints/internal/service"
)

// Services bundles what the router dispatches to
type Services struct {
	Auth          *service.AuthService
	Families      *service.FamilyService
	Tasks         *service.TaskService
	Rewards       *service.RewardService
	Notifications *service.NotificationService
	Gate          *service.Gate
	Limiter       *security.RateLimiter
	Startup       *StartupStatus
}

// NewRouter registers every API route and wraps the mux with logging and metrics
func NewRouter(s Services) http.Handler {
	middleware := NewMiddleware(s.Auth, s.Limiter)
	authHandler := NewAuthHandler(s.Auth)
	familyHandler := NewFamilyHandler(s.Families)
	taskHandler := NewTaskHandler(s.Tasks, s.Gate)
	rewardHandler := NewRewardHandler(s.Rewards, s.Gate)
	notificationHandler := NewNotificationHandler(s.Notifications)

	startup := s.Startup
	if startup == nil {
		startup = NewStartupStatus()
		startup.MarkReady()
	}

	mux := http.NewServeMux()

	// Operational routes
	mux.HandleFunc("GET /healthz", startup.Health)
	mux.Handle("GET /metrics", metrics.Handler())

	// Public routes
	mux.HandleFunc("POST /api/auth/signup", middleware.RateLimit(authHandler.SignUp))
	mux.HandleFunc("POST /api/auth/signin", middleware.RateLimit(authHandler.SignIn))

	// Account routes
	mux.HandleFunc("GET /api/me", middleware.RequireAuth(authHandler.Me))
	mux.HandleFunc("POST /api/families", middleware.RequireAuth(familyHandler.CreateFamily))
	mux.HandleFunc("POST /api/families/join", middleware.RequireAuth(familyHandler.JoinFamily))
	mux.HandleFunc("GET /api/families/members", middleware.RequireFamily(familyHandler.Members))

	// Task routes
	mux.HandleFunc("GET /api/tasks", middleware.RequireFamily(taskHandler.List))
	mux.HandleFunc("GET /api/tasks/mine", middleware.RequireAuth(taskHandler.Mine))
	mux.HandleFunc("GET /api/tasks/pending-approval-count", middleware.RequireFamily(taskHandler.PendingApprovalCount))
	mux.HandleFunc("GET /api/tasks/{id}", middleware.RequireFamily(taskHandler.Get))
	mux.HandleFunc("POST /api/tasks", middleware.RequireFamily(taskHandler.Create))
	mux.HandleFunc("POST /api/tasks/{id}/status", middleware.RequireAuth(taskHandler.UpdateStatus))
	mux.HandleFunc("DELETE /api/tasks/{id}", middleware.RequireFamily(taskHandler.Delete))

	// Reward routes
	mux.HandleFunc("GET /api/rewards", middleware.RequireFamily(rewardHandler.List))
	mux.HandleFunc("POST /api/rewards", middleware.RequireFamily(rewardHandler.Create))
	mux.HandleFunc("PUT /api/rewards/{id}", middleware.RequireFamily(rewardHandler.Update))
	mux.HandleFunc("DELETE /api/rewards/{id}", middleware.RequireFamily(rewardHandler.Delete))
	mux.HandleFunc("POST /api/rewards/{id}/claim", middleware.RequireFamily(rewardHandler.Claim))

	// Claim routes
	mux.HandleFunc("GET /api/claims", middleware.RequireAuth(rewardHandler.MyClaims))
	mux.HandleFunc("GET /api/claims/family", middleware.RequireFamily(rewardHandler.FamilyClaims))
	mux.HandleFunc("POST /api/claims/{id}/resolve", middleware.RequireFamily(rewardHandler.Resolve))

	// Notification routes
	mux.HandleFunc("GET /api/notifications", middleware.RequireAuth(notificationHandler.List))
	mux.HandleFunc("GET /api/notifications/unread-count", middleware.RequireAuth(notificationHandler.UnreadCount))
	mux.HandleFunc("POST /api/notifications/read-all", middleware.RequireAuth(notificationHandler.MarkAllRead))
	mux.HandleFunc("POST /api/notifications/{id}/read", middleware.RequireAuth(notificationHandler.MarkRead))

	return metrics.InstrumentHandler(Logging(mux))
}
