// Package router assembles the HTTP API.
package router

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/earnhub/backend/internal/auth"
	"github.com/earnhub/backend/internal/dashboard"
	"github.com/earnhub/backend/internal/handlers"
	"github.com/earnhub/backend/internal/jobs"
	"github.com/earnhub/backend/internal/metrics"
	"github.com/earnhub/backend/internal/middleware"
	"github.com/earnhub/backend/internal/referral"
	"github.com/earnhub/backend/internal/services"
	"github.com/earnhub/backend/internal/wallet"
	"github.com/earnhub/backend/internal/works"
)

// Handlers groups the per-domain HTTP handlers.
type Handlers struct {
	Auth      *auth.Handler
	Jobs      *jobs.Handler
	Works     *works.Handler
	Referrals *referral.Handler
	Wallet    *wallet.Handler
	Dashboard *dashboard.Handler
	// Realtime serves /ws; nil disables it.
	Realtime http.Handler
}

type Options struct {
	AllowedOrigins []string
	MetricsEnabled bool
	RequestTimeout time.Duration
}

// New returns the API handler. Routes live under /api/v1; /health, /metrics
// and /ws sit at the root.
func New(h Handlers, tokens middleware.TokenValidator, v middleware.BodyValidator, opts Options) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	body := func(schema string) func(http.Handler) http.Handler {
		return middleware.ValidateBody(v, schema)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if opts.MetricsEnabled {
		r.Use(instrument)
	}

	r.Get("/health", handlers.Health)
	if opts.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if h.Realtime != nil {
		// Websockets are long-lived; no request timeout.
		r.Handle("/ws", h.Realtime)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Timeout(opts.RequestTimeout))

		r.With(body(services.SchemaRegister)).Post("/auth/register", h.Auth.Register)
		r.With(body(services.SchemaLogin)).Post("/auth/login", h.Auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(tokens))

			r.Get("/auth/me", h.Auth.Me)

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/", h.Wallet.GetWallet)
				r.Get("/transactions", h.Wallet.Transactions)
				r.With(body(services.SchemaDeposit)).Post("/deposit", h.Wallet.Deposit)
				r.With(body(services.SchemaWithdraw)).Post("/withdraw", h.Wallet.Withdraw)
				r.With(body(services.SchemaConvert)).Post("/convert", h.Wallet.Convert)
			})
			r.Route("/subscriptions", func(r chi.Router) {
				r.With(body(services.SchemaSubscribe)).Post("/subscribe", h.Wallet.Subscribe)
				r.Put("/cancel", h.Wallet.CancelSubscription)
			})

			r.Route("/jobs", func(r chi.Router) {
				r.Get("/", h.Jobs.ListJobs)
				r.With(body(services.SchemaCreateJob)).Post("/", h.Jobs.CreateJob)
				r.Get("/mine", h.Jobs.MyJobs)
				r.Get("/{id}", h.Jobs.GetJob)
				r.Delete("/{id}", h.Jobs.DeleteJob)
				r.Post("/{id}/delete-request", h.Jobs.RequestDeletion)
				r.Post("/{id}/assign/{userID}", h.Jobs.AssignJob)
			})

			r.Route("/works", func(r chi.Router) {
				r.With(body(services.SchemaSubmitWork)).Post("/{id}/submit", h.Works.SubmitToJob)
				r.Get("/mine", h.Works.MyWorks)
				r.Get("/employer", h.Works.EmployerWorks)
				r.Get("/job/{jobID}", h.Works.JobWorks)
				r.Get("/{id}", h.Works.GetWork)
				r.With(body(services.SchemaSubmitWork)).Put("/{id}/submit", h.Works.Submit)
				r.With(body(services.SchemaReviewWork)).Put("/{id}/approve", h.Works.Approve)
				r.With(body(services.SchemaReviewWork)).Put("/{id}/reject", h.Works.Reject)
			})

			r.Route("/referrals", func(r chi.Router) {
				r.Get("/", h.Referrals.List)
				r.Get("/my-code", h.Referrals.MyCode)
				r.Get("/earnings", h.Referrals.Earnings)
				r.With(body(services.SchemaApplyCode)).Post("/apply-code", h.Referrals.ApplyCode)
			})

			r.Get("/notifications", h.Dashboard.Notifications)
			r.Put("/notifications/read-all", h.Dashboard.MarkAllRead)
			r.Put("/notifications/{id}/read", h.Dashboard.MarkRead)
			r.Get("/activities", h.Dashboard.Activities)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin())

				r.Get("/stats", h.Dashboard.AdminStats)
				r.Get("/online", h.Dashboard.Online)

				r.Get("/jobs/pending", h.Jobs.PendingJobs)
				r.Get("/jobs/delete-requests", h.Jobs.DeleteRequests)
				r.Put("/jobs/{id}/approve", h.Jobs.ApproveJob)
				r.With(body(services.SchemaReason)).Put("/jobs/{id}/reject", h.Jobs.RejectJob)

				r.Get("/withdrawals", h.Wallet.Withdrawals)
				r.Put("/withdrawals/{id}/approve", h.Wallet.ApproveWithdrawal)
				r.With(body(services.SchemaReason)).Put("/withdrawals/{id}/reject", h.Wallet.RejectWithdrawal)
				r.Put("/deposits/{id}/approve", h.Wallet.ApproveDeposit)
				r.With(body(services.SchemaReason)).Put("/deposits/{id}/reject", h.Wallet.RejectDeposit)
				r.With(body(services.SchemaTransactionStatus)).Put("/transactions/{id}/status", h.Wallet.UpdateStatus)
				r.With(body(services.SchemaSetBalances)).Put("/users/{id}/balances", h.Wallet.SetBalances)
			})
		})
	})

	return cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}).Handler(r)
}

// instrument counts requests by route pattern rather than raw path, so IDs
// do not explode the label set.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
