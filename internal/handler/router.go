package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/z-invoice/backend/internal/handler/invoice"
	"github.com/zhouzirui/z-invoice/backend/internal/logging"
	middlewarePkg "github.com/zhouzirui/z-invoice/backend/internal/middleware"
	"github.com/zhouzirui/z-invoice/backend/pkg/utils"
)

// NewRouter wires HTTP routes to the dialog controller.
func NewRouter(dialogSvc invoice.DialogService, gatherer prometheus.Gatherer, limit middlewarePkg.RateLimitConfig, log *logging.Logger) http.Handler {
	if log == nil {
		log = logging.Nop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(log.Sub("http")))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	invoiceHandler := invoice.New(dialogSvc, log.Sub("invoice"))

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewarePkg.RateLimit(limit))
		invoiceHandler.RegisterRoutes(api)
	})

	return r
}
