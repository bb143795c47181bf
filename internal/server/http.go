package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rbright/powerctl/internal/auth"
	"github.com/rbright/powerctl/internal/protocol"
)

const (
	maxRequestBody  = 4 << 10
	slowRequestTime = time.Second
)

// NewHTTPHandler routes the liveness probe and one path per action.
func NewHTTPHandler(svc *Service, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &httpHandler{svc: svc, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", h.handlePing)
	for _, action := range protocol.Actions() {
		mux.HandleFunc("/"+string(action), h.handleAction(action))
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, logger, http.StatusNotFound, protocol.Response{Success: false, Message: "Not found"})
	})
	return loggingMiddleware(mux, logger)
}

type httpHandler struct {
	svc    *Service
	logger *slog.Logger
}

func (h *httpHandler) handlePing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, h.logger, http.MethodGet)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, protocol.Liveness{Status: protocol.LivenessOK, Hostname: h.svc.Hostname()})
}

func (h *httpHandler) handleAction(action protocol.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		allowed := r.Method == http.MethodPost || (action == protocol.ActionStatus && r.Method == http.MethodGet)
		if !allowed {
			if action == protocol.ActionStatus {
				writeMethodNotAllowed(w, h.logger, http.MethodGet, http.MethodPost)
			} else {
				writeMethodNotAllowed(w, h.logger, http.MethodPost)
			}
			return
		}

		body, err := decodeBody(w, r)
		if err != nil {
			h.logger.Warn("invalid request body", "remote", r.RemoteAddr, "action", string(action), "error", err.Error())
			writeJSON(w, h.logger, http.StatusBadRequest, protocol.Response{Success: false, Message: "Invalid request body"})
			return
		}

		req := protocol.Request{Action: action, Key: auth.Credential(r, body.Key)}
		if action.AcceptsOptions() {
			req.Options = body.Options()
		}

		resp, err := h.svc.Handle(r.Context(), Call{Request: req, Transport: TransportHTTP, Remote: r.RemoteAddr})
		writeJSON(w, h.logger, statusCode(err), resp)
	}
}

// decodeBody reads the optional JSON body. An empty body decodes to zero.
func decodeBody(w http.ResponseWriter, r *http.Request) (protocol.Body, error) {
	var body protocol.Body
	if r.Body == nil || r.Method == http.MethodGet {
		return body, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return protocol.Body{}, nil
		}
		return protocol.Body{}, err
	}
	return body, nil
}

func statusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, protocol.ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, protocol.ErrInvalidCredential):
		return http.StatusForbidden
	case errors.Is(err, protocol.ErrUnsupportedAction):
		return http.StatusNotFound
	case errors.Is(err, protocol.ErrMalformedCommand):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeMethodNotAllowed(w http.ResponseWriter, logger *slog.Logger, methods ...string) {
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeJSON(w, logger, http.StatusMethodNotAllowed, protocol.Response{Success: false, Message: "Method not allowed"})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("write response failed", "error", err.Error())
	}
}

// statusRecorder captures the response code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("Cache-Control", "no-store")

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		duration := time.Since(start)

		attrs := []any{
			"remote", r.RemoteAddr,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", duration.Milliseconds(),
		}
		if ua := r.UserAgent(); ua != "" {
			attrs = append(attrs, "user_agent", ua)
		}
		if duration > slowRequestTime {
			logger.Warn("slow request", attrs...)
			return
		}
		logger.Debug("request", attrs...)
	})
}
