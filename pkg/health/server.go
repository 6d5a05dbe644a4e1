package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/speedrun-hq/cachekeeper/pkg/chainclient"
	"github.com/speedrun-hq/cachekeeper/pkg/chains"
	"github.com/speedrun-hq/cachekeeper/pkg/circuitbreaker"
	"github.com/speedrun-hq/cachekeeper/pkg/gas"
	"github.com/speedrun-hq/cachekeeper/pkg/logger"
	"github.com/speedrun-hq/cachekeeper/pkg/txlifecycle"
	"github.com/speedrun-hq/cachekeeper/pkg/units"
)

// ChainStatus reads chain state for /status and /ready
type ChainStatus interface {
	GetLatestBlockNumber(ctx context.Context) (uint64, error)
	CacheState(ctx context.Context) (chainclient.CacheState, error)
}

// GasStatus exposes the gas watcher's last advisory
type GasStatus interface {
	Latest() (advisory gas.Advisory, updatedAt time.Time, ok bool)
}

// TransactionStatus exposes per-contract lifecycle state
type TransactionStatus interface {
	Transactions() map[string]txlifecycle.Snapshot
}

// Pinger checks that the backend answers
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the components the server reports on. Nil members are skipped.
type Dependencies struct {
	ChainID      int
	CacheManager string
	Chain        ChainStatus
	Gas          GasStatus
	Transactions TransactionStatus
	Backend      Pinger
	Breakers     []*circuitbreaker.CircuitBreaker
}

// Server represents a health check HTTP server
type Server struct {
	port          string
	deps          Dependencies
	metricsAPIKey string
	logger        logger.Logger
}

// NewServer creates a new health check server
func NewServer(port string, deps Dependencies, log logger.Logger) *Server {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Server{
		port:          port,
		deps:          deps,
		metricsAPIKey: os.Getenv("METRICS_API_KEY"),
		logger:        log,
	}
}

// metricsAuthMiddleware is a middleware that checks for a valid API key
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if parts[1] != s.metricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler returns the routes served by the health server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/circuit/reset", s.handleCircuitReset)

	// Expose Prometheus metrics with API key authentication
	mux.Handle("/metrics", s.metricsAuthMiddleware(promhttp.Handler()))

	return mux
}

// Start serves until ctx ends and then shuts the listener down
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting health and metrics server on port %s", s.port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("health server error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if s.deps.Chain != nil {
		if _, err := s.deps.Chain.GetLatestBlockNumber(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("Chain %d not reachable", s.deps.ChainID)))
			return
		}
	}
	for _, cb := range s.deps.Breakers {
		if cb.IsOpen() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("Circuit %s open", cb.Name())))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}

type gasStatus struct {
	PriceGwei string    `json:"price_gwei"`
	MaxGwei   string    `json:"max_gwei"`
	Exceeded  bool      `json:"exceeded"`
	Warning   string    `json:"warning,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type txStatus struct {
	Status string `json:"status"`
	TxHash string `json:"tx_hash,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := map[string]interface{}{
		"chain_id":      s.deps.ChainID,
		"chain_name":    chains.GetChainName(s.deps.ChainID),
		"cache_manager": s.deps.CacheManager,
	}

	if s.deps.Chain != nil {
		if block, err := s.deps.Chain.GetLatestBlockNumber(ctx); err == nil {
			status["latest_block"] = block
		}
		if state, err := s.deps.Chain.CacheState(ctx); err == nil {
			status["cache"] = map[string]interface{}{
				"cache_size":   state.CacheSize,
				"queue_size":   state.QueueSize,
				"decay":        state.Decay,
				"paused":       state.Paused,
				"fill_percent": state.FillPercent(),
			}
		}
	}

	if s.deps.Gas != nil {
		if advisory, updatedAt, ok := s.deps.Gas.Latest(); ok {
			status["gas"] = gasStatus{
				PriceGwei: formatGwei(advisory.GasPrice),
				MaxGwei:   formatGwei(advisory.MaxGasPrice),
				Exceeded:  advisory.Exceeded,
				Warning:   advisory.Message(),
				UpdatedAt: updatedAt,
			}
		}
	}

	if s.deps.Backend != nil {
		backendStatus := "ok"
		if err := s.deps.Backend.Ping(ctx); err != nil {
			backendStatus = err.Error()
		}
		status["backend"] = backendStatus
	}

	circuits := make([]circuitbreaker.State, 0, len(s.deps.Breakers))
	for _, cb := range s.deps.Breakers {
		circuits = append(circuits, cb.GetState())
	}
	status["circuits"] = circuits

	if s.deps.Transactions != nil {
		txs := make(map[string]txStatus)
		for id, snapshot := range s.deps.Transactions.Transactions() {
			tx := txStatus{Status: snapshot.Status.String()}
			if snapshot.Status == txlifecycle.StatusPending || snapshot.Status == txlifecycle.StatusSuccess {
				tx.TxHash = snapshot.TxHash.Hex()
			}
			if snapshot.Err != nil {
				tx.Error = snapshot.Err.Error()
			}
			txs[id] = tx
		}
		status["transactions"] = txs
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("Error encoding status JSON: %v", err)
	}
}

// handleCircuitReset is the admin control for a named breaker
func (s *Server) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Missing name parameter"))
		return
	}

	for _, cb := range s.deps.Breakers {
		if cb.Name() == name {
			cb.Reset()
			s.logger.Info("Circuit breaker %s reset by admin request", name)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(fmt.Sprintf("Circuit breaker %s reset", name)))
			return
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(fmt.Sprintf("No circuit breaker named %s", name)))
}

func formatGwei(wei *big.Int) string {
	if wei == nil {
		return ""
	}
	return units.FormatGwei(wei)
}
