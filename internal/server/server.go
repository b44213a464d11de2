package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"clown-builder-backend/internal/config"
	"clown-builder-backend/internal/llm"
	"clown-builder-backend/internal/metrics"
	"clown-builder-backend/internal/relay"
	"clown-builder-backend/internal/types"
	"clown-builder-backend/pkg/logger"
)

const (
	EngineName    = "CLOWN Website Builder"
	EngineVersion = "1.0.0"
)

type Server struct {
	router  *chi.Mux
	relay   *relay.Service
	cfg     config.Config
	limiter *rate.Limiter
	now     func() time.Time
}

// NewServer wires the upstream provider named in cfg into a ready router.
func NewServer(cfg config.Config) (*Server, error) {
	gen, err := newGenerator(cfg)
	if err != nil {
		return nil, err
	}
	return newServerWithGenerator(cfg, gen)
}

func newServerWithGenerator(cfg config.Config, gen llm.Generator) (*Server, error) {
	prompt, err := relay.LoadPromptSpec(cfg.PromptFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt spec: %w", err)
	}
	m, err := metrics.NewRelayMetrics(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	svc := relay.NewService(gen, prompt, relay.Options{
		DefaultAPIKey:   cfg.APIKey,
		DefaultModel:    cfg.Model,
		AllowedModels:   cfg.AllowedModels,
		UpstreamTimeout: cfg.UpstreamTimeout,
		Metrics:         m,
	})

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.AllowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s := &Server{
		router: r,
		relay:  svc,
		cfg:    cfg,
		now:    time.Now,
	}
	if cfg.RateLimitRPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.Get("/", s.handleRoot)
	s.router.Get("/health", s.handleHealth)
	s.router.With(s.rateLimit).Post("/process", s.handleProcess)
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.StatusResponse{
		Status:  "online",
		Engine:  EngineName,
		Version: EngineVersion,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:    "healthy",
		Timestamp: float64(s.now().UnixNano()) / float64(time.Second),
	})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	}
	var req types.EditRequest
	if err := decodeBody(r.Body, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	logger.Infof("[process] request %s: %q", requestIDFrom(r.Context()), truncate(strings.TrimSpace(req.UserMessage), 80))

	env, err := s.relay.Process(r.Context(), req)
	if err != nil {
		if errors.Is(err, relay.ErrMissingCredential) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again shortly")
			return
		}
		next.ServeHTTP(w, r)
	})
}

var errTrailingData = errors.New("unexpected data after JSON body")

// decodeBody reads exactly one JSON value from body.
func decodeBody(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			return errTrailingData
		}
		return err
	}
	return nil
}

// truncate shortens s to at most n runes for log lines.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, types.ErrorResponse{Detail: msg})
}
