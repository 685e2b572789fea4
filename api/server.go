/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from proxy headers
  3. Logger:     One zerolog event per request
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the front-end

ROUTE GROUPS:
  /api/settings, /api/categories   Academy configuration
  /api/players/*, /api/guardians   Players and guardians
  /api/payments/*                  Payments and allocations
  /api/expenses/*                  Expenses
  /api/inventory/*                 Items and stock movements
  /api/attendance                  Attendance
  /api/dashboard, /api/alerts/*    Summary and sweep output
  /api/reports/finance             Monthly finance report
  /api/scenarios/*                 Demo data
  /metrics                         Prometheus exposition
  /*                               Static files (front-end)

STATIC FILE SERVING:
  Serves the front-end from RouterOptions.StaticDir. Unknown paths fall
  back to index.html for client-side routing.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/efusa/academy/metrics"
)

// RouterOptions configures the parts of the router outside the API.
type RouterOptions struct {
	CORSOrigins []string
	StaticDir   string
	Metrics     *metrics.Recorder // nil disables /metrics
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", IdempotencyKeyHeader},
		MaxAge:         300,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.UpdateSettings)
		r.Get("/categories", h.ListCategories)

		r.Route("/players", func(r chi.Router) {
			r.Get("/", h.ListPlayers)
			r.Post("/", h.CreatePlayer)
			r.Post("/recategorize", h.RecategorizePlayers)
			r.Get("/{id}", h.GetPlayer)
			r.Put("/{id}", h.UpdatePlayer)
			r.Delete("/{id}", h.DeletePlayer)
			r.Get("/{id}/status", h.GetPlayerStatus)
			r.Get("/{id}/payments", h.GetPlayerPayments)
		})
		r.Get("/guardians", h.ListGuardians)

		r.Route("/payments", func(r chi.Router) {
			r.Get("/", h.ListPayments)
			r.Post("/", h.CreatePayment)
			r.Delete("/{id}", h.DeletePayment)
			r.Get("/{id}/allocations", h.GetPaymentAllocations)
			r.Post("/{id}/reallocate", h.ReallocatePayment)
		})

		r.Route("/expenses", func(r chi.Router) {
			r.Get("/", h.ListExpenses)
			r.Post("/", h.CreateExpense)
			r.Put("/{id}", h.UpdateExpense)
			r.Delete("/{id}", h.DeleteExpense)
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/", h.ListItems)
			r.Post("/", h.CreateItem)
			r.Put("/{id}", h.UpdateStock)
			r.Get("/{id}/movements", h.ListMovements)
			r.Post("/{id}/movements", h.RecordMovement)
		})

		r.Get("/attendance", h.ListAttendance)
		r.Post("/attendance", h.SaveAttendance)

		r.Get("/dashboard", h.GetDashboard)
		r.Get("/alerts", h.ListAlerts)
		r.Post("/alerts/sweep", h.RunSweep)
		r.Get("/reports/finance", h.GetFinanceReport)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Get("/*", staticHandler(opts.StaticDir))
	return r
}

// requestLogger logs one event per request.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			ev := log.Info()
			if ww.Status() >= http.StatusInternalServerError {
				ev = log.Error()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

// staticHandler serves the front-end with an index.html fallback.
func staticHandler(dir string) http.HandlerFunc {
	index := filepath.Join(dir, "index.html")
	if dir == "" {
		return placeholderPage
	}
	if _, err := os.Stat(index); err != nil {
		return placeholderPage
	}

	fileServer := http.FileServer(http.Dir(dir))
	return func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			// SPA routing: serve index.html
			http.ServeFile(w, r, index)
			return
		}
		fileServer.ServeHTTP(w, r)
	}
}

func placeholderPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Academy Manager</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Academy Manager API</h1>
<p>No front-end found. Set STATIC_DIR to the directory holding index.html.</p>
<ul>
<li><a href="/api/players">/api/players</a></li>
<li><a href="/api/payments">/api/payments</a></li>
<li><a href="/api/dashboard">/api/dashboard</a></li>
<li><a href="/api/scenarios">/api/scenarios</a></li>
</ul>
</body>
</html>`))
}
