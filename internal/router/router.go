package router

import (
	"net/http"

	"github.com/localpro/backend/internal/auth"
	"github.com/localpro/backend/internal/dashboard"
	"github.com/localpro/backend/internal/handlers"
	"github.com/localpro/backend/internal/notify"
	"github.com/localpro/backend/internal/registry"
)

// Middleware wraps a handler, e.g. bearer auth or the open-task quota check.
type Middleware func(http.Handler) http.Handler

// New returns the API handler. Auth endpoints are public; everything else
// runs behind authMW, and task creation additionally behind quotaMW.
func New(
	authHandler *auth.Handler,
	registryHandler *registry.Handler,
	taskHandler *handlers.TaskHandler,
	bookingHandler *handlers.BookingHandler,
	dashHandler *dashboard.Handler,
	webhookHandler *notify.Handler,
	authMW Middleware,
	quotaMW Middleware,
) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /v1/auth/login", authHandler.Login)

	authed := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authMW(h))
	}

	// Provider registry.
	authed("POST /v1/providers", registryHandler.CreateProfile)
	authed("GET /v1/providers/me", registryHandler.GetProfile)
	authed("POST /v1/services", registryHandler.RegisterService)
	authed("GET /v1/services", registryHandler.ListServices)
	authed("DELETE /v1/services/{id}", registryHandler.DeactivateService)

	// Tasks. Creation also passes the open-task quota gate.
	mux.Handle("POST /v1/tasks", authMW(quotaMW(http.HandlerFunc(taskHandler.Create))))
	authed("GET /v1/tasks", taskHandler.List)
	authed("GET /v1/tasks/open", taskHandler.ListOpen)
	authed("GET /v1/tasks/{id}", taskHandler.Get)
	authed("PATCH /v1/tasks/{id}", taskHandler.Update)
	authed("DELETE /v1/tasks/{id}", taskHandler.Delete)
	authed("POST /v1/tasks/{id}/match", taskHandler.Rematch)
	authed("POST /v1/tasks/{id}/interest", taskHandler.ExpressInterest)
	authed("POST /v1/tasks/{id}/request", taskHandler.RequestProvider)
	authed("POST /v1/tasks/{id}/response", taskHandler.Respond)
	authed("POST /v1/tasks/{id}/cancel", taskHandler.Cancel)

	// Bookings.
	authed("GET /v1/bookings", bookingHandler.List)
	authed("GET /v1/bookings/{id}", bookingHandler.Get)
	authed("POST /v1/bookings/{id}/start", bookingHandler.Start)
	authed("POST /v1/bookings/{id}/complete", bookingHandler.Complete)
	authed("POST /v1/bookings/{id}/cancel", bookingHandler.Cancel)
	authed("POST /v1/bookings/{id}/reschedule", bookingHandler.Reschedule)

	// Webhook subscriptions.
	authed("POST /v1/webhooks", webhookHandler.CreateSubscription)
	authed("DELETE /v1/webhooks/{id}", webhookHandler.DeleteSubscription)

	// Dashboard read models.
	authed("GET /v1/dashboard/me", dashHandler.GetMe)
	authed("GET /v1/dashboard/overview", dashHandler.GetOverview)

	return mux
}
