package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"consultbot/internal/config"
	"consultbot/internal/conversation"
	"consultbot/internal/domain"
	"consultbot/internal/export"
	"consultbot/internal/metrics"
	"consultbot/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxConversationIDLen = 128

// Deps are the collaborators served over HTTP.
type Deps struct {
	Conversations *conversation.Manager
	Bookings      domain.AppointmentStore
	Scheduling    domain.SchedulingService
	Catalog       models.Catalog
	// Readiness reports whether backing stores are reachable. Nil means always ready.
	Readiness func(ctx context.Context) error
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
	Clock   func() time.Time
}

// HTTPServer exposes the conversation and booking JSON API.
type HTTPServer struct {
	cfg     *config.APIConfig
	deps    Deps
	server  *http.Server
	auth    *HTTPAuth
	limiter *rateLimiter
	log     zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "http").Logger()
	}

	srv := &HTTPServer{
		cfg:     cfg,
		deps:    deps,
		auth:    NewHTTPAuth(cfg),
		limiter: newRateLimiter(cfg.RateLimit),
		log:     base,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/conversations/{id}/events", srv.handleConversationEvent)
	mux.HandleFunc("GET /api/v1/conversations/{id}/messages", srv.handleConversationMessages)
	mux.HandleFunc("GET /api/v1/conversations/{id}", srv.handleConversation)
	mux.HandleFunc("GET /api/v1/bookings", srv.handleBookings)
	mux.HandleFunc("GET /api/v1/bookings/export", srv.handleBookingsExport)
	mux.HandleFunc("GET /api/v1/bookings/{id}", srv.handleBooking)
	mux.HandleFunc("GET /api/v1/availability", srv.handleAvailability)
	mux.HandleFunc("GET /api/v1/catalog", srv.handleCatalog)
	mux.HandleFunc("GET /healthz", srv.handleHealthz)
	mux.HandleFunc("GET /readyz", srv.handleReadyz)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	handler := srv.loggingMiddleware(corsMiddleware(srv.auth.Wrap(mux)))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type exchangeResponse struct {
	ConversationID string                   `json:"conversation_id"`
	State          models.ConversationState `json:"state"`
	Messages       []models.Message         `json:"messages"`
}

func (s *HTTPServer) handleConversationEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	if s.deps.Conversations == nil {
		writeError(w, http.StatusServiceUnavailable, "conversations are not available")
		return
	}
	if !s.limiter.allow("conversation:" + id) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var ev models.UserEvent
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := conversation.ValidateEvent(ev); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, msgs, err := s.deps.Conversations.Exchange(r.Context(), id, ev)
	if err != nil {
		s.writeConversationError(w, id, err)
		return
	}

	writeJSON(w, http.StatusOK, exchangeResponse{
		ConversationID: id,
		State:          o.State(),
		Messages:       msgs,
	})
}

func (s *HTTPServer) writeConversationError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, conversation.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, conversation.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "conversation is closed")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, "request canceled")
	default:
		s.log.Error().Err(err).Str("conversation_id", id).Msg("conversation exchange failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *HTTPServer) handleConversationMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	o, found := s.lookup(id)
	if !found {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	after := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("after")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
		after = n
	}

	msgs := o.Timeline().Since(after)
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": id,
		"state":           o.State(),
		"messages":        msgs,
		"next":            after + len(msgs),
	})
}

func (s *HTTPServer) handleConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	o, found := s.lookup(id)
	if !found {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, o.Snapshot())
}

func (s *HTTPServer) lookup(id string) (*conversation.Orchestrator, bool) {
	if s.deps.Conversations == nil {
		return nil, false
	}
	return s.deps.Conversations.Lookup(id)
}

func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.listBookings(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "bookings are not available")
		return
	}

	status := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))
	consultantID := strings.TrimSpace(r.URL.Query().Get("consultant_id"))
	out := make([]*models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if status != "" && string(b.Status) != status {
			continue
		}
		if consultantID != "" && b.Consultant.ID != consultantID {
			continue
		}
		out = append(out, b)
	}

	writeJSON(w, http.StatusOK, map[string]any{"bookings": out})
}

func (s *HTTPServer) handleBookingsExport(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.listBookings(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "bookings are not available")
		return
	}

	var buf bytes.Buffer
	if err := export.WriteBookings(&buf, bookings); err != nil {
		s.log.Error().Err(err).Msg("export bookings")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	fileName := fmt.Sprintf("bookings_%s.xlsx", s.deps.Clock().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *HTTPServer) listBookings(ctx context.Context) ([]*models.Booking, error) {
	if s.deps.Bookings == nil {
		return nil, errors.New("booking store is not configured")
	}
	bookings, err := s.deps.Bookings.ListBookings(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("list bookings")
		return nil, err
	}
	return bookings, nil
}

func (s *HTTPServer) handleBooking(w http.ResponseWriter, r *http.Request) {
	id := strings.ToUpper(strings.TrimSpace(r.PathValue("id")))
	if id == "" {
		writeError(w, http.StatusBadRequest, "booking id is required")
		return
	}
	if s.deps.Bookings == nil {
		writeError(w, http.StatusServiceUnavailable, "bookings are not available")
		return
	}

	b, err := s.deps.Bookings.GetBooking(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			writeError(w, http.StatusNotFound, "booking not found")
			return
		}
		s.log.Error().Err(err).Str("booking_id", id).Msg("get booking")
		writeError(w, http.StatusServiceUnavailable, "bookings are not available")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	consultantID := strings.TrimSpace(r.URL.Query().Get("consultant_id"))
	if consultantID == "" {
		writeError(w, http.StatusBadRequest, "consultant_id is required")
		return
	}
	if _, ok := s.deps.Catalog.Consultant(consultantID); !ok {
		writeError(w, http.StatusNotFound, "consultant not found")
		return
	}

	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if dateStr == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	date, err := models.ParseDate(dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	if s.deps.Scheduling == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduling is not available")
		return
	}
	slots, err := s.deps.Scheduling.GetAvailableSlots(r.Context(), consultantID, date)
	if err != nil {
		s.log.Warn().Err(err).Str("consultant_id", consultantID).Str("date", dateStr).Msg("availability lookup failed")
		writeError(w, http.StatusServiceUnavailable, "availability is not available")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"consultant_id": consultantID,
		"date":          dateStr,
		"slots":         slots,
	})
}

func (s *HTTPServer) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"services":    s.deps.Catalog.Services,
		"consultants": s.deps.Catalog.Consultants,
	})
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Readiness != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Readiness(ctx); err != nil {
			s.log.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func conversationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" || len(id) > maxConversationIDLen {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return "", false
	}
	return id, true
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, X-API-Extra, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint)

		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
