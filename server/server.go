package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"xdonate/native/sweep"
	"xdonate/storage"
)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
}

// BalanceSource reads custody balances directly from the chain. Used to
// refresh the ledger before a sweep so passively received funds are visible.
type BalanceSource interface {
	BalanceOf(ctx context.Context, asset common.Address) (*big.Int, error)
}

// Server hosts the admin and health endpoints for xdonated.
type Server struct {
	cfg     Config
	engine  *sweep.Engine
	ledger  *sweep.Ledger
	storage *storage.Storage
	chain   BalanceSource
	logger  *log.Logger
	auth    *Authenticator
}

// New constructs a new HTTP server.
func New(cfg Config, engine *sweep.Engine, ledger *sweep.Ledger, store *storage.Storage, chain BalanceSource, logger *log.Logger, auth *Authenticator) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("sweep engine required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("custody ledger required")
	}
	if store == nil {
		return nil, fmt.Errorf("storage required")
	}
	if auth == nil {
		return nil, fmt.Errorf("admin authenticator required")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Server{cfg: cfg, engine: engine, ledger: ledger, storage: store, chain: chain, logger: logger, auth: auth}, nil
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	srv := &http.Server{Addr: s.cfg.ListenAddress, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Printf("xdonated: http server listening on %s", s.cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

// Handler assembles the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", otelhttp.NewHandler(http.HandlerFunc(s.handleHealth), "xdonated.health"))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/config", otelhttp.NewHandler(http.HandlerFunc(s.handleConfig), "xdonated.config"))
	mux.Handle("/admin/sweepers", otelhttp.NewHandler(s.requireAdmin(http.HandlerFunc(s.handleSweepers)), "xdonated.sweepers"))
	mux.Handle("/admin/sweepers/add", otelhttp.NewHandler(s.requireAdmin(http.HandlerFunc(s.handleSweeperAdd)), "xdonated.sweepers.add"))
	mux.Handle("/admin/sweepers/remove", otelhttp.NewHandler(s.requireAdmin(http.HandlerFunc(s.handleSweeperRemove)), "xdonated.sweepers.remove"))
	mux.Handle("/admin/sweep", otelhttp.NewHandler(s.requireAdmin(http.HandlerFunc(s.handleSweep)), "xdonated.sweep"))
	mux.Handle("/admin/sweeps", otelhttp.NewHandler(s.requireAdmin(http.HandlerFunc(s.handleSweeps)), "xdonated.sweeps"))
	mux.Handle("/admin/pause", otelhttp.NewHandler(s.requireAdmin(http.HandlerFunc(s.handlePause)), "xdonated.pause"))
	mux.Handle("/admin/resume", otelhttp.NewHandler(s.requireAdmin(http.HandlerFunc(s.handleResume)), "xdonated.resume"))
	return mux
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	if s.auth == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "authentication unavailable", http.StatusInternalServerError)
		})
	}
	return s.auth.Middleware(next)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cfg := s.engine.Config()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"swap_router":        cfg.SwapRouter.Hex(),
		"swap_quoter":        cfg.SwapQuoter.Hex(),
		"bridge":             cfg.Bridge.Hex(),
		"wrapped_native":     cfg.WrappedNative.Hex(),
		"recipient":          cfg.Recipient.Hex(),
		"asset":              cfg.Asset.Hex(),
		"asset_decimals":     cfg.AssetDecimals,
		"domain":             cfg.Domain,
		"min_slippage_bps":   sweep.MinSlippageBps,
		"paused":             s.engine.Paused(),
	})
}

func (s *Server) handleSweepers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	members := s.engine.Registry().Members()
	out := make([]string, 0, len(members))
	for _, addr := range members {
		out = append(out, addr.Hex())
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"sweepers": out})
}

func (s *Server) handleSweeperAdd(w http.ResponseWriter, r *http.Request) {
	principal, target, ok := s.decodeSweeperMutation(w, r)
	if !ok {
		return
	}
	if err := s.engine.AddSweeper(principal.Address, target); err != nil {
		s.writeEngineError(w, err)
		return
	}
	if err := s.storage.SaveSweeper(r.Context(), target, principal.Address); err != nil {
		s.logger.Printf("xdonated: persist sweeper: %v", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSweeperRemove(w http.ResponseWriter, r *http.Request) {
	principal, target, ok := s.decodeSweeperMutation(w, r)
	if !ok {
		return
	}
	if err := s.engine.RemoveSweeper(principal.Address, target); err != nil {
		s.writeEngineError(w, err)
		return
	}
	if err := s.storage.DeleteSweeper(r.Context(), target); err != nil {
		s.logger.Printf("xdonated: unpersist sweeper: %v", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decodeSweeperMutation(w http.ResponseWriter, r *http.Request) (*Principal, common.Address, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, common.Address{}, false
	}
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return nil, common.Address{}, false
	}
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return nil, common.Address{}, false
	}
	raw := strings.TrimSpace(req.Address)
	if !common.IsHexAddress(raw) {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return nil, common.Address{}, false
	}
	return principal, common.HexToAddress(raw), true
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	var req struct {
		Asset        string `json:"asset"`
		FeeTier      uint32 `json:"fee_tier"`
		AmountIn     string `json:"amount_in"`
		MinAmountOut string `json:"min_amount_out"`
		SlippageBps  uint64 `json:"slippage_bps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if !common.IsHexAddress(strings.TrimSpace(req.Asset)) {
		http.Error(w, "invalid asset", http.StatusBadRequest)
		return
	}
	asset := common.HexToAddress(strings.TrimSpace(req.Asset))
	amountIn, ok := parseAmount(req.AmountIn)
	if !ok {
		http.Error(w, "invalid amount_in", http.StatusBadRequest)
		return
	}
	shortForm := strings.TrimSpace(req.MinAmountOut) == "" && req.SlippageBps == 0
	if !shortForm && strings.TrimSpace(req.MinAmountOut) == "" && asset != s.engine.Config().Asset {
		http.Error(w, "min_amount_out required with slippage_bps", http.StatusBadRequest)
		return
	}

	if err := s.syncCustody(r.Context(), asset); err != nil {
		s.logger.Printf("xdonated: custody sync: %v", err)
		http.Error(w, "custody sync failed", http.StatusBadGateway)
		return
	}

	var (
		receipt *sweep.SweepReceipt
		err     error
	)
	if shortForm {
		receipt, err = s.engine.SweepWithDefaults(r.Context(), principal.Address, asset, req.FeeTier, amountIn)
	} else {
		sweepReq := sweep.SweepRequest{
			Asset:             asset,
			FeeTier:           req.FeeTier,
			AmountIn:          amountIn,
			BridgeSlippageBps: req.SlippageBps,
		}
		if raw := strings.TrimSpace(req.MinAmountOut); raw != "" {
			minOut, ok := parseAmount(raw)
			if !ok {
				http.Error(w, "invalid min_amount_out", http.StatusBadRequest)
				return
			}
			sweepReq.MinSwapOut = minOut
		}
		if sweepReq.BridgeSlippageBps == 0 {
			sweepReq.BridgeSlippageBps = sweep.DefaultBridgeSlippageBps
		}
		receipt, err = s.engine.Sweep(r.Context(), principal.Address, sweepReq)
	}
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	record := storage.SweepRecord{
		Caller:          principal.Address,
		Asset:           receipt.Asset,
		AmountIn:        receipt.AmountIn,
		AmountForwarded: receipt.AmountForwarded,
		TransferID:      receipt.TransferID,
	}
	id, err := s.storage.RecordSweep(r.Context(), record)
	if err != nil {
		s.logger.Printf("xdonated: record sweep: %v", err)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":               id,
		"asset":            receipt.Asset.Hex(),
		"amount_in":        receipt.AmountIn.String(),
		"amount_forwarded": receipt.AmountForwarded.String(),
		"transfer_id":      receipt.TransferID.Hex(),
		"swapped":          receipt.Swapped,
	})
}

func (s *Server) handleSweeps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	sweeps, err := s.storage.ListSweeps(r.Context(), limit)
	if err != nil {
		s.logger.Printf("xdonated: list sweeps: %v", err)
		http.Error(w, "failed to list sweeps", http.StatusInternalServerError)
		return
	}
	out := make([]map[string]any, 0, len(sweeps))
	for _, rec := range sweeps {
		out = append(out, map[string]any{
			"id":               rec.ID,
			"caller":           rec.Caller.Hex(),
			"asset":            rec.Asset.Hex(),
			"amount_in":        rec.AmountIn.String(),
			"amount_forwarded": rec.AmountForwarded.String(),
			"transfer_id":      rec.TransferID.Hex(),
			"created_at":       rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"sweeps": out})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.engine.Pause()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.engine.Resume()
	w.WriteHeader(http.StatusNoContent)
}

// syncCustody refreshes the ledger for the asset from the chain so deposits
// received since the last sweep are spendable.
func (s *Server) syncCustody(ctx context.Context, asset common.Address) error {
	if s.chain == nil {
		return nil
	}
	balance, err := s.chain.BalanceOf(ctx, asset)
	if err != nil {
		return err
	}
	return s.ledger.SetBalance(ctx, asset, balance)
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sweep.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, sweep.ErrInvalidAmount),
		errors.Is(err, sweep.ErrInvalidSwapBound),
		errors.Is(err, sweep.ErrInvalidBridgeSlippage):
		status = http.StatusBadRequest
	case errors.Is(err, sweep.ErrAlreadySweeper),
		errors.Is(err, sweep.ErrNotSweeper),
		errors.Is(err, sweep.ErrReentrant),
		errors.Is(err, sweep.ErrInsufficientBalance):
		status = http.StatusConflict
	case errors.Is(err, sweep.ErrPaused):
		status = http.StatusServiceUnavailable
	case errors.Is(err, sweep.ErrSwapFailed), errors.Is(err, sweep.ErrBridgeFailed):
		status = http.StatusBadGateway
	}
	http.Error(w, err.Error(), status)
}

func parseAmount(raw string) (*big.Int, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, false
	}
	return amount, true
}
