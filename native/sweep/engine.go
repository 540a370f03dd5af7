package sweep

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"xdonate/core/events"
	"xdonate/core/types"
	"xdonate/observability"
)

var (
	// ErrInvalidAmount indicates a zero or missing sweep amount.
	ErrInvalidAmount = errors.New("sweep: amount required")
	// ErrInvalidSwapBound indicates a missing minimum swap output when a swap
	// is required.
	ErrInvalidSwapBound = errors.New("sweep: minimum swap output required")
	// ErrInvalidBridgeSlippage indicates a bridge slippage tolerance below the
	// floor.
	ErrInvalidBridgeSlippage = errors.New("sweep: bridge slippage below floor")
	// ErrSwapFailed indicates the swap venue rejected or failed the exchange.
	ErrSwapFailed = errors.New("sweep: swap failed")
	// ErrBridgeFailed indicates the bridge rejected or failed the forwarding.
	ErrBridgeFailed = errors.New("sweep: bridge failed")
	// ErrReentrant indicates a call entered the engine while a sweep or
	// registry mutation was already in flight.
	ErrReentrant = errors.New("sweep: reentrant call")
	// ErrPaused indicates sweeps are administratively suspended.
	ErrPaused = errors.New("sweep: engine paused")
)

// SwapAdapter exchanges an exact input amount of an asset into the donation
// asset, returning the output amount. The exchange is atomic: it either
// delivers at least the minimum output or fails entirely.
type SwapAdapter interface {
	Swap(ctx context.Context, params SwapParams) (*big.Int, error)
}

// BridgeAdapter forwards the donation asset toward the destination domain,
// returning an opaque transfer identifier. The forwarding is atomic.
type BridgeAdapter interface {
	Forward(ctx context.Context, params BridgeParams) (common.Hash, error)
}

// NativeWrapper converts held native currency into its wrapped form so the
// swap venue can accept it.
type NativeWrapper interface {
	Wrap(ctx context.Context, amount *big.Int) error
}

// CustodyState exposes the balances held by the forwarder.
type CustodyState interface {
	BalanceOf(ctx context.Context, asset common.Address) (*big.Int, error)
	Debit(ctx context.Context, asset common.Address, amount *big.Int) error
}

// DecimalsSource resolves an asset's fixed-point precision. Used only by the
// short sweep form to derive a default minimum swap output.
type DecimalsSource interface {
	Decimals(ctx context.Context, asset common.Address) (uint8, error)
}

// Engine orchestrates a sweep: authorization, validation, optional wrap and
// swap, bridging, and custody accounting. A sweep either completes every step
// or leaves the engine's own state untouched; custody is debited and the
// lifecycle event emitted only after the bridge call succeeds.
type Engine struct {
	cfg      DonationConfig
	registry *Registry
	custody  CustodyState
	swapper  SwapAdapter
	bridger  BridgeAdapter
	wrapper  NativeWrapper
	decimals DecimalsSource

	emitter      events.Emitter
	nowFn        func() time.Time
	swapDeadline time.Duration
	tracer       trace.Tracer
	metrics      *observability.SweepMetrics

	busy   atomic.Bool
	paused atomic.Bool
}

// NewEngine constructs a sweep engine over the supplied collaborators.
func NewEngine(cfg DonationConfig, registry *Registry, custody CustodyState, swapper SwapAdapter, bridger BridgeAdapter, wrapper NativeWrapper) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, fmt.Errorf("sweep: registry required")
	}
	if custody == nil {
		return nil, fmt.Errorf("sweep: custody state required")
	}
	if swapper == nil {
		return nil, fmt.Errorf("sweep: swap adapter required")
	}
	if bridger == nil {
		return nil, fmt.Errorf("sweep: bridge adapter required")
	}
	if wrapper == nil {
		return nil, fmt.Errorf("sweep: native wrapper required")
	}
	return &Engine{
		cfg:          cfg,
		registry:     registry,
		custody:      custody,
		swapper:      swapper,
		bridger:      bridger,
		wrapper:      wrapper,
		emitter:      events.NoopEmitter{},
		nowFn:        time.Now,
		swapDeadline: 5 * time.Minute,
		tracer:       otel.Tracer("xdonate/sweep"),
		metrics:      observability.Sweep(),
	}, nil
}

// Config returns the immutable deployment parameters.
func (e *Engine) Config() DonationConfig {
	if e == nil {
		return DonationConfig{}
	}
	return e.cfg
}

// Registry returns the authorization registry backing the engine.
func (e *Engine) Registry() *Registry {
	if e == nil {
		return nil
	}
	return e.registry
}

// SetEmitter configures the event emitter used for sweep lifecycle events and
// registry mutations. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
	e.registry.SetEmitter(emitter)
}

// SetNowFunc overrides the engine clock, primarily for deterministic testing.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if e == nil {
		return
	}
	if now == nil {
		now = time.Now
	}
	e.nowFn = now
}

// SetDecimalsSource configures the precision lookup used by the short sweep
// form.
func (e *Engine) SetDecimalsSource(source DecimalsSource) {
	if e == nil {
		return
	}
	e.decimals = source
}

// SetSwapDeadline overrides the window granted to the swap venue before an
// in-flight exchange expires.
func (e *Engine) SetSwapDeadline(window time.Duration) {
	if e == nil || window <= 0 {
		return
	}
	e.swapDeadline = window
}

// Pause suspends sweeps. Registry reads remain available.
func (e *Engine) Pause() {
	if e == nil {
		return
	}
	e.paused.Store(true)
}

// Resume lifts an administrative pause.
func (e *Engine) Resume() {
	if e == nil {
		return
	}
	e.paused.Store(false)
}

// Paused reports whether sweeps are suspended.
func (e *Engine) Paused() bool {
	if e == nil {
		return false
	}
	return e.paused.Load()
}

// AddSweeper inserts target into the sweeper set on behalf of caller. Fails
// with ErrReentrant while a sweep is in flight.
func (e *Engine) AddSweeper(caller, target common.Address) error {
	if e == nil {
		return fmt.Errorf("sweep engine not configured")
	}
	if !e.busy.CompareAndSwap(false, true) {
		return ErrReentrant
	}
	defer e.busy.Store(false)
	return e.registry.Add(caller, target)
}

// RemoveSweeper removes target from the sweeper set on behalf of caller.
// Fails with ErrReentrant while a sweep is in flight.
func (e *Engine) RemoveSweeper(caller, target common.Address) error {
	if e == nil {
		return fmt.Errorf("sweep engine not configured")
	}
	if !e.busy.CompareAndSwap(false, true) {
		return ErrReentrant
	}
	defer e.busy.Store(false)
	return e.registry.Remove(caller, target)
}

// SweepWithDefaults runs the short sweep form: the minimum swap output is
// derived from the input amount and the default swap slippage, and the bridge
// slippage defaults to DefaultBridgeSlippageBps.
func (e *Engine) SweepWithDefaults(ctx context.Context, caller, asset common.Address, feeTier uint32, amountIn *big.Int) (*SweepReceipt, error) {
	if e == nil {
		return nil, fmt.Errorf("sweep engine not configured")
	}
	if !e.registry.IsSweeper(caller) {
		return nil, ErrUnauthorized
	}
	req := SweepRequest{
		Asset:             asset,
		FeeTier:           feeTier,
		AmountIn:          amountIn,
		BridgeSlippageBps: DefaultBridgeSlippageBps,
	}
	if asset != e.cfg.Asset && amountIn != nil && amountIn.Sign() > 0 {
		decimals, err := e.assetDecimals(ctx, asset)
		if err != nil {
			return nil, err
		}
		req.MinSwapOut = DefaultMinSwapOut(decimals, e.cfg.AssetDecimals, amountIn)
	}
	return e.Sweep(ctx, caller, req)
}

// Sweep validates and executes a single sweep. On success the custody balance
// of the swept asset decreases by exactly the requested amount and a Swept
// event is emitted; failures before the bridge call leave no engine state
// change. The Swept event still fires when only the custody settlement after a
// successful bridge call fails.
func (e *Engine) Sweep(ctx context.Context, caller common.Address, req SweepRequest) (*SweepReceipt, error) {
	if e == nil {
		return nil, fmt.Errorf("sweep engine not configured")
	}
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrReentrant
	}
	defer e.busy.Store(false)

	ctx, span := e.tracer.Start(ctx, "sweep.Sweep", trace.WithAttributes(
		attribute.String("sweep.asset", req.Asset.Hex()),
		attribute.String("sweep.caller", caller.Hex()),
	))
	defer span.End()

	started := e.nowFn()
	receipt, err := e.sweep(ctx, caller, req)
	elapsed := e.nowFn().Sub(started)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		e.metrics.ObserveSweep(req.Asset.Hex(), "error", elapsed, 0)
		return nil, err
	}
	span.SetAttributes(attribute.String("sweep.transfer_id", receipt.TransferID.Hex()))
	forwarded, _ := new(big.Float).SetInt(receipt.AmountForwarded).Float64()
	e.metrics.ObserveSweep(req.Asset.Hex(), "ok", elapsed, forwarded)
	return receipt, nil
}

func (e *Engine) sweep(ctx context.Context, caller common.Address, req SweepRequest) (*SweepReceipt, error) {
	if !e.registry.IsSweeper(caller) {
		return nil, ErrUnauthorized
	}
	if e.paused.Load() {
		return nil, ErrPaused
	}
	if req.AmountIn == nil || req.AmountIn.Sign() == 0 {
		return nil, ErrInvalidAmount
	}
	needsSwap := req.Asset != e.cfg.Asset
	if needsSwap && (req.MinSwapOut == nil || req.MinSwapOut.Sign() == 0) {
		return nil, ErrInvalidSwapBound
	}
	if req.BridgeSlippageBps < MinSlippageBps {
		return nil, ErrInvalidBridgeSlippage
	}

	balance, err := e.custody.BalanceOf(ctx, req.Asset)
	if err != nil {
		return nil, fmt.Errorf("sweep: read balance: %w", err)
	}
	if balance == nil || balance.Cmp(req.AmountIn) < 0 {
		return nil, ErrInsufficientBalance
	}

	forwarded := new(big.Int).Set(req.AmountIn)
	swapped := false
	if needsSwap {
		assetIn := req.Asset
		if assetIn == NativeAsset {
			if err := e.wrapper.Wrap(ctx, req.AmountIn); err != nil {
				return nil, fmt.Errorf("%w: wrap native: %v", ErrSwapFailed, err)
			}
			assetIn = e.cfg.WrappedNative
		}
		out, err := e.swapper.Swap(ctx, SwapParams{
			AssetIn:      assetIn,
			FeeTier:      req.FeeTier,
			AmountIn:     req.AmountIn,
			MinAmountOut: req.MinSwapOut,
			Deadline:     e.nowFn().Add(e.swapDeadline),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSwapFailed, err)
		}
		if out == nil || out.Cmp(req.MinSwapOut) < 0 {
			return nil, fmt.Errorf("%w: output below minimum", ErrSwapFailed)
		}
		forwarded = out
		swapped = true
	}

	transferID, err := e.bridger.Forward(ctx, BridgeParams{
		Asset:       e.cfg.Asset,
		Amount:      forwarded,
		Domain:      e.cfg.Domain,
		Recipient:   e.cfg.Recipient,
		SlippageBps: req.BridgeSlippageBps,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBridgeFailed, err)
	}

	receipt := &SweepReceipt{
		Asset:           req.Asset,
		AmountIn:        new(big.Int).Set(req.AmountIn),
		AmountForwarded: forwarded,
		TransferID:      transferID,
		Swapped:         swapped,
	}
	if err := e.custody.Debit(ctx, req.Asset, req.AmountIn); err != nil {
		// The bridge transfer is already in flight at this point. Emit the
		// event anyway so the forwarded funds stay visible, and carry the
		// transfer id in the settlement error.
		e.emit(NewSweptEvent(caller, receipt))
		return nil, fmt.Errorf("sweep: settle custody after transfer %s: %w", transferID.Hex(), err)
	}

	e.emit(NewSweptEvent(caller, receipt))
	return receipt, nil
}

func (e *Engine) assetDecimals(ctx context.Context, asset common.Address) (uint8, error) {
	if e.decimals == nil {
		return 0, fmt.Errorf("sweep: decimals source not configured")
	}
	if asset == NativeAsset {
		asset = e.cfg.WrappedNative
	}
	decimals, err := e.decimals.Decimals(ctx, asset)
	if err != nil {
		return 0, fmt.Errorf("sweep: resolve decimals: %w", err)
	}
	return decimals, nil
}

func (e *Engine) emit(evt *types.Event) {
	if evt == nil {
		return
	}
	e.emitter.Emit(sweepEvent{evt: evt})
}
