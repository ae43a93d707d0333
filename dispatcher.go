package oauth

import (
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hauptsacheNet/typo3-mcp-server-sub004/instrumentation"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/internal/util"
	"github.com/hauptsacheNet/typo3-mcp-server-sub004/security"
)

// Middleware mounts the OAuth endpoints in front of the host's handler.
// Paths in the route table are served here; OPTIONS requests on them get a
// CORS preflight answer; any other path is first checked for a resumable
// continuation and then handed to the host untouched.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint, ok := h.routes[r.URL.Path]
		if !ok {
			if h.resumeContinuation(w, r) {
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		h.setCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			h.servePreflight(w, r)
			return
		}

		security.SetSecurityHeaders(w, h.server.Config.Issuer)
		h.serveInstrumented(w, r, endpoint)
	})
}

// ServeHTTP serves the OAuth endpoints standalone, answering 404 for
// everything outside the route table. Used by the demo binary and tests;
// embedded deployments use Middleware.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})).ServeHTTP(w, r)
}

// serveInstrumented runs an endpoint under a span and records the HTTP
// metrics.
func (h *Handler) serveInstrumented(w http.ResponseWriter, r *http.Request, endpoint http.HandlerFunc) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	ctx := r.Context()
	if h.tracer != nil {
		spanCtx, span := h.tracer.Start(ctx, "oauth "+r.URL.Path)
		span.SetAttributes(
			attribute.String(instrumentation.AttrHTTPMethod, r.Method),
			attribute.String(instrumentation.AttrHTTPEndpoint, r.URL.Path),
		)
		defer func() {
			span.SetAttributes(attribute.Int(instrumentation.AttrHTTPStatusCode, rec.status))
			if rec.status >= 500 {
				instrumentation.SetSpanError(span, http.StatusText(rec.status))
			} else {
				instrumentation.SetSpanSuccess(span)
			}
			span.End()
		}()
		r = r.WithContext(spanCtx)
	}

	endpoint(rec, r)

	if m := h.metrics(); m != nil {
		m.RecordHTTPRequest(ctx, r.Method, r.URL.Path, rec.status, float64(time.Since(start).Milliseconds()))
	}
}

// setCORSHeaders answers cross-origin requests. Allow-listed origins are
// echoed back; anything else gets the server's own base URL, so only
// same-origin callers pass the browser's check. Requests without an Origin
// header need nothing.
func (h *Handler) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	allowOrigin := util.NormalizeURL(h.server.Config.Issuer)
	for _, candidate := range h.server.Config.AllowedOrigins {
		if candidate == origin {
			allowOrigin = origin
			break
		}
	}

	w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.Header().Add("Vary", "Origin")
}

// servePreflight answers an OPTIONS preflight on an OAuth endpoint.
func (h *Handler) servePreflight(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	w.Header().Set("Access-Control-Max-Age", strconv.Itoa(corsMaxAgeSeconds))
	w.WriteHeader(http.StatusNoContent)
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}
