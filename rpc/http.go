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
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stele/indexer"
	"stele/native/bank"
	"stele/native/challenge"
	"stele/observability"
	"stele/rpc/middleware"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeChallengeError = -32010
	codeRateLimited    = -32020
)

// ServerConfig carries the HTTP surface settings.
type ServerConfig struct {
	ServiceName string
	Auth        middleware.AuthConfig
	RateLimit   middleware.RateLimit
}

type methodHandler func(ctx context.Context, params []json.RawMessage) (interface{}, *RPCError)

// Server exposes the challenge engine over JSON-RPC 2.0.
type Server struct {
	engine  *challenge.Engine
	ledger  *bank.Ledger
	events  *indexer.Store
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	obs     *middleware.Observability
	logger  *slog.Logger
	methods map[string]methodHandler

	httpServer *http.Server
}

// NewServer wires the engine and its bank ledger behind the JSON-RPC
// surface. ledger may be nil when balances are managed elsewhere.
func NewServer(engine *challenge.Engine, ledger *bank.Ledger, cfg ServerConfig, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("rpc: challenge engine required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:  engine,
		ledger:  ledger,
		auth:    middleware.NewAuthenticator(cfg.Auth, logger),
		limiter: middleware.NewRateLimiter(cfg.RateLimit),
		obs:     middleware.NewObservability(cfg.ServiceName, logger),
		logger:  logger,
	}
	s.auth.SetRejectFunc(func(w http.ResponseWriter, status int, message string) {
		writeError(w, status, nil, codeUnauthorized, message, nil)
	})
	s.limiter.SetRejectFunc(func(w http.ResponseWriter, r *http.Request) {
		observability.ModuleMetrics().RecordThrottle("rpc", "rate_limit")
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
	})
	s.registerMethods()
	return s, nil
}

// SetEventStore enables the events_query method and the /ws/events stream.
func (s *Server) SetEventStore(store *indexer.Store) { s.events = store }

func (s *Server) registerMethods() {
	s.methods = map[string]methodHandler{
		"challenge_create":            s.handleCreate,
		"challenge_join":              s.handleJoin,
		"challenge_swap":              s.handleSwap,
		"challenge_register":          s.handleRegister,
		"challenge_claim":             s.handleClaim,
		"challenge_requestBadge":      s.handleRequestBadge,
		"challenge_getInfo":           s.handleGetInfo,
		"challenge_latest":            s.handleLatest,
		"challenge_getParticipant":    s.handleGetParticipant,
		"challenge_getParticipants":   s.handleGetParticipants,
		"challenge_getPortfolio":      s.handleGetPortfolio,
		"challenge_getRanking":        s.handleGetRanking,
		"challenge_isInvestable":      s.handleIsInvestable,
		"challenge_investableAssets":  s.handleInvestableAssets,
		"challenge_params":            s.handleParams,
		"admin_setInvestableAsset":    s.handleSetInvestableAsset,
		"admin_removeInvestableAsset": s.handleRemoveInvestableAsset,
		"admin_setEntryFee":           s.handleSetEntryFee,
		"admin_setSeedAmount":         s.handleSetSeedAmount,
		"admin_transferAdmin":         s.handleTransferAdmin,
		"bank_balance":                s.handleBalance,
		"bank_deposit":                s.handleDeposit,
		"events_query":                s.handleEventsQuery,
	}
}

// Handler builds the HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.obs.Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.With(s.limiter.Middleware, s.auth.Middleware).Post("/", s.handle)
	r.With(s.limiter.Middleware).Get("/ws/events", s.handleEventsWS)
	return r
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.logger.Info("json-rpc server listening", slog.String("addr", ln.Addr().String()))
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Start listens on addr and serves until Shutdown.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
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

func (e *RPCError) Error() string { return e.Message }

// ErrorData is attached to engine failures so clients can branch on the
// taxonomy code.
type ErrorData struct {
	Code string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
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
	w.Header().Set("Content-Type", "application/json")
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
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
		return
	}

	start := time.Now()
	result, rpcErr := handler(r.Context(), req.Params)
	module, _, _ := strings.Cut(req.Method, "_")
	if rpcErr != nil {
		observability.ModuleMetrics().Observe(module, req.Method, rpcErr.Code, time.Since(start))
		writeError(w, statusFor(rpcErr.Code), req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	observability.ModuleMetrics().Observe(module, req.Method, 0, time.Since(start))
	writeResult(w, req.ID, result)
}

func statusFor(code int) int {
	switch code {
	case codeUnauthorized:
		return http.StatusUnauthorized
	case codeServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// engineError translates an engine failure into a JSON-RPC error carrying the
// taxonomy code.
func engineError(err error) *RPCError {
	code := challenge.CodeOf(err)
	switch code {
	case "":
		return &RPCError{Code: codeServerError, Message: err.Error()}
	case challenge.ErrUnauthorized.Code:
		return &RPCError{Code: codeUnauthorized, Message: err.Error(), Data: ErrorData{Code: string(code)}}
	case challenge.ErrInvalidArgument.Code:
		return &RPCError{Code: codeInvalidParams, Message: err.Error(), Data: ErrorData{Code: string(code)}}
	default:
		return &RPCError{Code: codeChallengeError, Message: err.Error(), Data: ErrorData{Code: string(code)}}
	}
}

func invalidParams(format string, args ...interface{}) *RPCError {
	return &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf(format, args...)}
}
