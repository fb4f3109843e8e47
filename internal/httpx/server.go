package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/logging"
	"github.com/ariefcatur/go-storefront-core/internal/metrics"
)

// NewRouter builds the base router. Handlers register their own routes.
func NewRouter(log *zap.Logger, m *metrics.Metrics, auth *Auth, gatherer prometheus.Gatherer) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	r.Use(observe(log, m))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(auth.Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// observe extracts W3C trace context, attaches a request-scoped logger and
// records one log line and one counter per request, labelled by route
// template.
func observe(base *zap.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			rid := middleware.GetReqID(ctx)
			w.Header().Set("X-Request-ID", rid)

			log := base.With(zap.String("request_id", rid))
			if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
				log = log.With(zap.String("trace_id", sc.TraceID().String()))
			}
			ctx = logging.WithContext(ctx, log)

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			route := "unmatched"
			if rc := chi.RouteContext(ctx); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.HTTPRequest(route, strconv.Itoa(status))
			log.Info("http request",
				zap.String("method", r.Method), zap.String("route", route),
				zap.Int("status", status), zap.Duration("took", time.Since(start)))
		})
	}
}
