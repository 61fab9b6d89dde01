package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/obmonitor/pkg/app/core/account"
	"github.com/uhyunpark/obmonitor/pkg/app/core/instruction"
	"github.com/uhyunpark/obmonitor/pkg/app/monitor"
)

const (
	maxBodyBytes     = 64 << 10
	defaultPageLimit = 100
	maxPageLimit     = 1000
	defaultRecent    = 10
)

// Server handles REST API and WebSocket connections
type Server struct {
	app     *monitor.App
	router  *mux.Router
	hub     *Hub
	logger  *zap.SugaredLogger
	origins []string
	httpSrv *http.Server
	unsub   func()
}

// NewServer wires routes and forwards every committed receipt to the
// WebSocket hub.
func NewServer(app *monitor.App, logger *zap.SugaredLogger, origins []string) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		app:     app,
		router:  mux.NewRouter(),
		hub:     NewHub(logger),
		logger:  logger,
		origins: origins,
	}
	s.setupRoutes()
	s.unsub = app.Subscribe(s.broadcastReceipt)
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/instructions", s.handleSubmit).Methods("POST")

	api.HandleFunc("/accounts", s.handleListAccounts).Methods("GET")
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/accounts/{address}/records", s.handleGetRecords).Methods("GET")
	api.HandleFunc("/accounts/{address}/recent", s.handleGetRecent).Methods("GET")
	api.HandleFunc("/accounts/{address}/stats", s.handleGetStats).Methods("GET")
	api.HandleFunc("/accounts/{address}/raw", s.handleGetRaw).Methods("GET")

	api.HandleFunc("/nonces/{address}", s.handleGetNonce).Methods("GET")
	api.HandleFunc("/chain/status", s.handleGetChainStatus).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the CORS-wrapped router
func (s *Server) Handler() http.Handler {
	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:3001"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start runs the hub and serves until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Infow("api_listening", "addr", addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.unsub()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}
	env, err := instruction.Deserialize(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid envelope", err.Error())
		return
	}
	if err := env.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid envelope", err.Error())
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		s.app.PushTx(body)
		s.logger.Debugw("instruction_queued", "tx", env.Hash().Hex(), "account", env.Account.Hex())
		respondStatus(w, http.StatusAccepted, SubmitResponse{Status: "queued", TxHash: env.Hash()})
		return
	}

	rc, err := s.app.Execute(env)
	if err != nil {
		s.logger.Errorw("execute_failed", "tx", env.Hash().Hex(), "err", err)
		respondError(w, http.StatusInternalServerError, "execution failed", err.Error())
		return
	}
	resp := SubmitResponse{Status: "applied", TxHash: rc.TxHash, Receipt: &rc}
	if !rc.OK() {
		resp.Status = "rejected"
	}
	respondStatus(w, httpStatus(rc.Code), resp)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.app.Accounts()
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, accounts)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	info, err := s.app.Account(addr)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, info)
}

func (s *Server) handleGetRecords(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	offset, err := queryUint(r, "offset", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid offset", err.Error())
		return
	}
	limit, err := queryUint(r, "limit", defaultPageLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid limit", err.Error())
		return
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	info, err := s.app.Account(addr)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	records, err := s.app.Records(addr, offset, limit)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, RecordsPage{Address: addr, Offset: offset, Count: info.Count, Records: records})
}

func (s *Server) handleGetRecent(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	n, err := queryUint(r, "n", defaultRecent)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid n", err.Error())
		return
	}
	if n > maxPageLimit {
		n = maxPageLimit
	}
	records, err := s.app.Recent(addr, n)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, records)
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	rep, err := s.app.Stats(addr)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, rep)
}

// handleGetRaw serves the region bytes unchanged for offline analysis
func (s *Server) handleGetRaw(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	region, err := s.app.Region(addr)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(region)))
	_, _ = w.Write(region)
}

func (s *Server) handleGetNonce(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	n, err := s.app.Nonce(addr)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, NonceInfo{Address: addr, Nonce: n})
}

func (s *Server) handleGetChainStatus(w http.ResponseWriter, r *http.Request) {
	head, err := s.app.Head()
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, ChainStatus{
		Height:    head.Height,
		StateRoot: head.StateRoot,
		Time:      head.Time,
		Pending:   s.app.Pending(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast
// ==============================

func (s *Server) broadcastReceipt(rc monitor.Receipt) {
	s.hub.BroadcastToChannel(ChannelReceipts, WSReceipt{Type: "receipt", Channel: ChannelReceipts, Receipt: rc})
	ch := AccountChannel(rc.Account)
	s.hub.BroadcastToChannel(ch, WSReceipt{Type: "receipt", Channel: ch, Receipt: rc})
}

// ==============================
// Helper Functions
// ==============================

// httpStatus maps a receipt code to the response status of a synchronous submit
func httpStatus(code uint32) int {
	switch code {
	case monitor.CodeOK:
		return http.StatusOK
	case monitor.CodeNotInitialized:
		return http.StatusNotFound
	case monitor.CodeUnauthorized, monitor.CodeBadSignature:
		return http.StatusForbidden
	case monitor.CodeAlreadyInitialized, monitor.CodeFull, monitor.CodeStaleNonce:
		return http.StatusConflict
	case monitor.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) respondAppError(w http.ResponseWriter, err error) {
	code := monitor.ErrorCode(err)
	status := httpStatus(code)
	if errors.Is(err, account.ErrNotInitialized) {
		status = http.StatusNotFound
	}
	if status >= http.StatusInternalServerError {
		s.logger.Errorw("request_failed", "err", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   monitor.CodeName(code),
		Message: err.Error(),
		Code:    code,
	})
}

func pathAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, "invalid address", raw)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func queryUint(r *http.Request, key string, def uint64) (uint64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	respondStatus(w, http.StatusOK, data)
}

func respondStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	respondStatus(w, status, ErrorResponse{
		Error:   error,
		Message: message,
	})
}
