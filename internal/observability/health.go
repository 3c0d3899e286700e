package observability

import (
	"context"
	"net/http"
	"sort"
	"sync"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Component names reported by the health checker
const (
	ComponentFeed  = "feed"
	ComponentKafka = "kafka"
	ComponentRedis = "redis"
)

// HealthChecker manages health checks for both gRPC and HTTP. The process
// is healthy when it is not shutting down and every registered component
// reports ready.
type HealthChecker struct {
	grpcHealth *health.Server
	httpServer *http.Server
	logger     *zap.Logger
	mu         sync.RWMutex
	ready      bool
	components map[string]bool
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		grpcHealth: health.NewServer(),
		logger:     logger,
		ready:      true,
		components: make(map[string]bool),
	}
}

// RegisterGRPC registers the health service with the gRPC server
func (h *HealthChecker) RegisterGRPC(s *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(s, h.grpcHealth)
	h.publish()
}

// Handler returns the HTTP handler serving /healthz
func (h *HealthChecker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealthz)
	return mux
}

// StartHTTPServer starts the HTTP health check server
func (h *HealthChecker) StartHTTPServer(addr string) error {
	h.mu.Lock()
	h.httpServer = &http.Server{
		Addr:    addr,
		Handler: h.Handler(),
	}
	srv := h.httpServer
	h.mu.Unlock()

	h.logger.Info("starting HTTP health server", zap.String("addr", addr))
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the health checker
func (h *HealthChecker) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.ready = false
	srv := h.httpServer
	h.mu.Unlock()
	h.publish()

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// SetReady records a component's readiness. A component counts towards
// health from its first report on.
func (h *HealthChecker) SetReady(component string, ready bool) {
	h.mu.Lock()
	changed := h.components[component] != ready
	h.components[component] = ready
	h.mu.Unlock()

	if changed {
		h.logger.Info("component readiness changed",
			zap.String("component", component),
			zap.Bool("ready", ready),
		)
	}
	h.publish()
}

// Healthy reports the overall status
func (h *HealthChecker) Healthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.healthyLocked()
}

func (h *HealthChecker) healthyLocked() bool {
	if !h.ready {
		return false
	}
	for _, ok := range h.components {
		if !ok {
			return false
		}
	}
	return true
}

// publish mirrors the overall and per-component status into the gRPC
// health service.
func (h *HealthChecker) publish() {
	h.mu.RLock()
	overall := h.healthyLocked()
	statuses := make(map[string]bool, len(h.components))
	for name, ok := range h.components {
		statuses[name] = ok && h.ready
	}
	h.mu.RUnlock()

	h.grpcHealth.SetServingStatus("", servingStatus(overall))
	for name, ok := range statuses {
		h.grpcHealth.SetServingStatus(name, servingStatus(ok))
	}
}

func servingStatus(ok bool) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if ok {
		return grpc_health_v1.HealthCheckResponse_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_NOT_SERVING
}

type healthReport struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *HealthChecker) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	healthy := h.healthyLocked()
	names := make([]string, 0, len(h.components))
	for name := range h.components {
		names = append(names, name)
	}
	sort.Strings(names)
	report := healthReport{Status: "OK", Components: make(map[string]string, len(names))}
	for _, name := range names {
		if h.components[name] {
			report.Components[name] = "ready"
		} else {
			report.Components[name] = "not_ready"
		}
	}
	h.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		report.Status = "NOT_READY"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if err := json.NewEncoder(w).Encode(report); err != nil {
		h.logger.Warn("failed to write health report", zap.Error(err))
	}
}
