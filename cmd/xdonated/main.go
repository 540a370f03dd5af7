package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"xdonate/adapters/connext"
	"xdonate/adapters/evm"
	"xdonate/adapters/uniswap"
	"xdonate/adapters/weth"
	"xdonate/config"
	"xdonate/core/events"
	"xdonate/native/sweep"
	"xdonate/observability/logging"
	telemetry "xdonate/observability/otel"
	"xdonate/server"
	"xdonate/storage"
)

const signingKeyEnv = "XDONATE_SWEEPER_KEY"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.yaml", "path to xdonated configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("XDONATE_ENV"))
	logger := logging.Setup("xdonated", env)
	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "xdonated",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("xdonated: load config: %v", err)
	}

	dsn, err := storage.FileDSN(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("xdonated: resolve storage DSN: %v", err)
	}
	store, err := storage.Open(dsn)
	if err != nil {
		log.Fatalf("xdonated: open storage: %v", err)
	}
	defer store.Close()

	keyHex := strings.TrimSpace(os.Getenv(signingKeyEnv))
	if keyHex == "" {
		log.Fatalf("xdonated: %s must be set", signingKeyEnv)
	}
	key, err := gethcrypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		log.Fatalf("xdonated: parse signing key: %v", err)
	}

	client, err := evm.Dial(cfg.RPC.Endpoint)
	if err != nil {
		log.Fatalf("xdonated: dial rpc: %v", err)
	}
	defer client.Close()

	transactor, err := evm.NewTransactor(client, key, big.NewInt(cfg.RPC.ChainID))
	if err != nil {
		log.Fatalf("xdonated: transactor: %v", err)
	}
	tokens := evm.NewTokenCaller(client)

	ctx := context.Background()
	decimals, err := tokens.Decimals(ctx, cfg.Donation.Asset.Address)
	if err != nil {
		log.Fatalf("xdonated: read donation asset decimals: %v", err)
	}

	donationCfg := sweep.DonationConfig{
		SwapRouter:    cfg.Donation.SwapRouter.Address,
		SwapQuoter:    cfg.Donation.SwapQuoter.Address,
		Bridge:        cfg.Donation.Connext.Address,
		WrappedNative: cfg.Donation.WrappedNative.Address,
		Recipient:     cfg.Donation.Recipient.Address,
		Asset:         cfg.Donation.Asset.Address,
		Domain:        cfg.Donation.Domain,
		AssetDecimals: decimals,
	}

	registry := sweep.NewRegistry(transactor.From())
	saved, err := store.ListSweepers(ctx)
	if err != nil {
		log.Fatalf("xdonated: hydrate sweepers: %v", err)
	}
	for _, addr := range saved {
		registry.Seed(addr)
	}
	if err := store.SaveSweeper(ctx, transactor.From(), transactor.From()); err != nil {
		log.Printf("xdonated: persist deployer sweeper: %v", err)
	}

	ledger := sweep.NewLedger()
	if err := ledger.WithStore(ctx, store); err != nil {
		log.Fatalf("xdonated: restore custody ledger: %v", err)
	}

	swapper, err := uniswap.New(transactor, donationCfg.SwapRouter, donationCfg.Asset)
	if err != nil {
		log.Fatalf("xdonated: swap adapter: %v", err)
	}
	bridger, err := connext.New(transactor, donationCfg.Bridge)
	if err != nil {
		log.Fatalf("xdonated: bridge adapter: %v", err)
	}
	wrapper, err := weth.New(transactor, donationCfg.WrappedNative)
	if err != nil {
		log.Fatalf("xdonated: native wrapper: %v", err)
	}

	engine, err := sweep.NewEngine(donationCfg, registry, ledger, swapper, bridger, wrapper)
	if err != nil {
		log.Fatalf("xdonated: sweep engine: %v", err)
	}
	engine.SetDecimalsSource(tokens)
	engine.SetSwapDeadline(cfg.Sweep.Deadline.Duration)
	engine.SetEmitter(&logEmitter{logger: logger})
	if cfg.Sweep.Paused {
		engine.Pause()
		log.Printf("xdonated: starting paused per configuration")
	}

	operators := make([]server.Operator, 0, len(cfg.Operators))
	for _, op := range cfg.Operators {
		operators = append(operators, server.Operator{Name: op.Name, Token: op.Token, Address: op.Address.Address})
		logger.Info("operator configured",
			slog.String("name", op.Name),
			slog.String("address", op.Address.Hex()),
			logging.MaskField("token", op.Token),
		)
	}
	authenticator, err := server.NewAuthenticator(operators)
	if err != nil {
		log.Fatalf("xdonated: configure admin auth: %v", err)
	}

	chain := evm.NewChainBalances(client, transactor.From())
	srv, err := server.New(server.Config{ListenAddress: cfg.ListenAddress}, engine, ledger, store, chain, log.Default(), authenticator)
	if err != nil {
		log.Fatalf("xdonated: server: %v", err)
	}

	logger.Info("custody account ready",
		slog.String("account", transactor.From().Hex()),
		slog.String("donation_asset", donationCfg.Asset.Hex()),
		slog.Uint64("domain", uint64(donationCfg.Domain)),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("xdonated: http server error: %v", err)
		os.Exit(1)
	}
}

// logEmitter surfaces engine lifecycle events through the structured logger.
type logEmitter struct {
	logger *slog.Logger
}

func (l *logEmitter) Emit(evt events.Event) {
	if l == nil || l.logger == nil || evt == nil {
		return
	}
	payload, ok := evt.(events.Payload)
	if !ok {
		l.logger.Info("engine event", slog.String("type", evt.EventType()))
		return
	}
	raw := payload.Event()
	if raw == nil {
		return
	}
	attrs := make([]any, 0, len(raw.Attributes)+1)
	attrs = append(attrs, slog.String("type", raw.Type))
	for key, value := range raw.Attributes {
		attrs = append(attrs, slog.String(key, value))
	}
	l.logger.Info("engine event", attrs...)
}
