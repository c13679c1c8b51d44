package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"trustflow/core"
	"trustflow/observability"
	"trustflow/rpc/middleware"
)

const (
	jsonRPCVersion         = "2.0"
	defaultMaxRequestBytes = 1 << 20 // 1 MiB
	defaultMaxPageSize     = 100
	readHeaderTimeout      = 10 * time.Second
	metricsModule          = "rpc"
)

// Config tunes the HTTP surface. Zero values pick the defaults.
type Config struct {
	MaxBodyBytes  int64
	MaxPageSize   uint64
	RateLimit     *middleware.RateLimit
	Auth          *middleware.Authenticator
	Observability *middleware.Observability
	Logger        *slog.Logger
}

type methodHandler func(r *http.Request, params []json.RawMessage) (interface{}, *ModuleError)

// Server exposes the node over JSON-RPC 2.0, plus health, metrics and the
// event websocket.
type Server struct {
	node        *core.Node
	logger      *slog.Logger
	auth        *middleware.Authenticator
	limiter     *middleware.RateLimiter
	obs         *middleware.Observability
	maxBody     int64
	maxPageSize uint64
	methods     map[string]methodHandler
	handler     http.Handler

	serverMu   sync.Mutex
	httpServer *http.Server
}

func NewServer(node *core.Node, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		node:        node,
		logger:      logger.With("component", "rpc"),
		auth:        cfg.Auth,
		obs:         cfg.Observability,
		maxBody:     cfg.MaxBodyBytes,
		maxPageSize: cfg.MaxPageSize,
	}
	if s.maxBody <= 0 {
		s.maxBody = defaultMaxRequestBytes
	}
	if s.maxPageSize == 0 {
		s.maxPageSize = defaultMaxPageSize
	}
	if s.obs == nil {
		s.obs = middleware.NewObservability(middleware.ObservabilityConfig{}, s.logger)
	}
	if cfg.RateLimit != nil {
		s.limiter = middleware.NewRateLimiter(*cfg.RateLimit, s.logger)
		s.limiter.OnThrottle(func(string) {
			observability.ModuleMetrics().RecordThrottle(metricsModule, "rate_limit")
		})
	}
	s.methods = s.registerMethods()
	s.handler = s.routes()
	return s
}

func (s *Server) registerMethods() map[string]methodHandler {
	return map[string]methodHandler{
		"lending_sendTransaction":        s.handleSendTransaction,
		"lending_getLoan":                s.handleGetLoan,
		"lending_getLoans":               s.handleGetLoans,
		"lending_getLoanCount":           s.handleGetLoanCount,
		"lending_getBorrowerLoanIds":     s.handleGetBorrowerLoanIDs,
		"lending_getLenderInvestmentIds": s.handleGetLenderInvestmentIDs,
		"lending_getTotalOwed":           s.handleGetTotalOwed,
		"lending_getLoanInvestments":     s.handleGetLoanInvestments,
		"lending_getLoanRepayments":      s.handleGetLoanRepayments,
		"lending_getLoanPayouts":         s.handleGetLoanPayouts,
		"lending_getLedger":              s.handleGetLedger,
		"lending_getEvents":              s.handleGetEvents,
		"tf_getBalance":                  s.handleGetBalance,
		"tf_getAccount":                  s.handleGetAccount,
		"risk_quote":                     s.handleRiskQuote,
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.obs.MetricsHandler())
	r.Group(func(gr chi.Router) {
		if s.limiter != nil {
			gr.Use(s.limiter.Middleware)
		}
		gr.With(s.obs.Middleware("rpc")).Post("/rpc", s.handle)
		gr.With(s.obs.Middleware("ws_events")).Get("/ws/events", s.handleEventsWS)
	})
	return otelhttp.NewHandler(r, "trustflow-rpc")
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve blocks serving on listener until Shutdown is called.
func (s *Server) Serve(listener net.Listener) error {
	if listener == nil {
		return fmt.Errorf("rpc: listener required")
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.serverMu.Lock()
	s.httpServer = srv
	s.serverMu.Unlock()
	s.logger.Info("serving JSON-RPC", "addr", listener.Addr().String())
	err := srv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMu.Lock()
	srv := s.httpServer
	s.serverMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	initialized, err := s.node.Initialized()
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "error", "error": err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "ok",
		"chainId":     s.node.ChainID(),
		"initialized": initialized,
	})
}

// handle decodes a single JSON-RPC request and routes it by method.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reader := http.MaxBytesReader(w, r.Body, s.maxBody)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.maxBody)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	handler, ok := s.methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		observability.ModuleMetrics().Observe(metricsModule, "unknown", http.StatusNotFound, time.Since(start))
		return
	}

	result, moduleErr := handler(r, req.Params)
	status := http.StatusOK
	if moduleErr != nil {
		status = moduleErr.HTTPStatus
		if moduleErr.cause != nil {
			s.logger.Error("rpc call failed",
				"method", req.Method,
				"request_id", middleware.RequestIDFromContext(r.Context()),
				"error", moduleErr.cause)
		}
		writeError(w, status, req.ID, moduleErr.Code, moduleErr.Message, moduleErr.Data)
	} else {
		writeResult(w, req.ID, result)
	}
	observability.ModuleMetrics().Observe(metricsModule, req.Method, status, time.Since(start))
}
