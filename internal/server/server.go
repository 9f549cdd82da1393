// Package server implements C7: the HTTP request router that binds §6's
// endpoints, translating C4/C5 error kinds to HTTP status per §7's
// kind→status table. It never reaches into provider vocabulary (llm
// package types never appear in a response body).
package server

import (
	"crypto/rand"
	"fmt"
	mathrand "math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/n0rvyn/cross-mind-consensus/internal/analytics"
	"github.com/n0rvyn/cross-mind-consensus/internal/consensus"
	"github.com/n0rvyn/cross-mind-consensus/internal/llm"
	"github.com/n0rvyn/cross-mind-consensus/internal/modelconfig"
	"github.com/n0rvyn/cross-mind-consensus/internal/ratelimit"
)

// DefaultMaxInflight is §5's "bounded by max_inflight_requests, default
// 256".
const DefaultMaxInflight = 256

// Server holds every C7 dependency explicitly injected, mirroring C5's
// Engine design note against ambient optional singletons.
type Server struct {
	Engine         *consensus.Engine
	Models         *modelconfig.Store
	Providers      *llm.Registry
	Analytics      analytics.Store
	Gate           *ratelimit.Gate
	AllowedOrigins []string
	MaxInflight    int

	inflight chan struct{}
}

// NewServer builds a Server. MaxInflight <= 0 uses DefaultMaxInflight.
func NewServer(engine *consensus.Engine, models *modelconfig.Store, providers *llm.Registry, store analytics.Store, gate *ratelimit.Gate, allowedOrigins []string, maxInflight int) *Server {
	if maxInflight <= 0 {
		maxInflight = DefaultMaxInflight
	}
	return &Server{
		Engine:         engine,
		Models:         models,
		Providers:      providers,
		Analytics:      store,
		Gate:           gate,
		AllowedOrigins: allowedOrigins,
		MaxInflight:    maxInflight,
		inflight:       make(chan struct{}, maxInflight),
	}
}

// Router builds the gorilla/mux router with CORS applied, grounded on
// orchestrator/run.go's Run().
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/prometheus", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/consensus", s.withBackpressure(s.withAuth(ratelimit.RouteConsensus, s.handleConsensus))).Methods(http.MethodPost)
	r.HandleFunc("/consensus/batch", s.withBackpressure(s.withAuth(ratelimit.RouteBatch, s.handleBatch))).Methods(http.MethodPost)
	r.HandleFunc("/models", s.withAuth(ratelimit.RouteReadOnly, s.handleModels)).Methods(http.MethodGet)
	r.HandleFunc("/analytics/performance", s.withAuth(ratelimit.RouteReadOnly, s.handleAnalyticsPerformance)).Methods(http.MethodGet)
	r.HandleFunc("/feedback", s.withAuth(ratelimit.RouteReadOnly, s.handleFeedback)).Methods(http.MethodPost)

	c := cors.New(cors.Options{
		AllowedOrigins:   s.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

// withBackpressure enforces §5's max_inflight_requests cap, rejecting with
// overloaded (503, Retry-After 1s) when the semaphore is full rather than
// queuing the request.
func (s *Server) withBackpressure(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case s.inflight <- struct{}{}:
			promInflightRequests.Inc()
			defer func() {
				<-s.inflight
				promInflightRequests.Dec()
			}()
			next(w, r)
		default:
			promOverloadedTotal.Inc()
			w.Header().Set("Retry-After", "1")
			writeError(w, "overloaded", "too many in-flight requests", nil)
		}
	}
}

// withAuth applies C4's bearer-token authorisation and rate limiting ahead
// of next, translating a denied AuthResult into §7's error envelope.
func (s *Server) withAuth(class ratelimit.RouteClass, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r.Header.Get("Authorization"))
		result := s.Gate.Authorize(r.Context(), token, class)
		if !result.Allowed {
			if result.ErrorKind == "rate_limited" {
				w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			}
			writeError(w, result.ErrorKind, authMessage(result.ErrorKind), nil)
			return
		}
		next(w, r)
	}
}

func authMessage(kind string) string {
	switch kind {
	case "unauthorized":
		return "missing or malformed Authorization header"
	case "forbidden":
		return "token is not recognised"
	case "rate_limited":
		return "rate limit exceeded for this token"
	default:
		return "request denied"
	}
}

// extractBearerToken pulls the token out of "Bearer <token>", returning ""
// for any other shape (including an absent header).
func extractBearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

// generateRequestID builds a request identifier, grounded on
// orchestrator/run.go's generateRequestID/generateRandomString.
func generateRequestID() string {
	return fmt.Sprintf("req_%d_%s", time.Now().Unix(), generateRandomString(8))
}

func generateRandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, length)
	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		for i := range b {
			b[i] = charset[mathrand.Intn(len(charset))]
		}
		return string(b)
	}
	for i := range b {
		b[i] = charset[int(randomBytes[i])%len(charset)]
	}
	return string(b)
}
