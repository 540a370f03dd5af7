package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"xdonate/native/sweep"
	"xdonate/storage"
)

var (
	testOperator  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testDonation  = common.HexToAddress("0x7F5c764cBc14f9669B88837ca1490cCa17c31607")
	testToken     = common.HexToAddress("0x4200000000000000000000000000000000000042")
	testRouter    = common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564")
	testBridge    = common.HexToAddress("0x8f7492DE823025b4CfaAB1D34c58963F2af5DEDA")
	testWeth      = common.HexToAddress("0x4200000000000000000000000000000000000006")
	testRecipient = common.HexToAddress("0xe19300FfD7bc4C63D72b16355B24ba851C44dD9b")
)

type stubSwapper struct{}

func (stubSwapper) Swap(ctx context.Context, params sweep.SwapParams) (*big.Int, error) {
	return new(big.Int).Set(params.MinAmountOut), nil
}

type stubBridger struct{}

func (stubBridger) Forward(ctx context.Context, params sweep.BridgeParams) (common.Hash, error) {
	return common.HexToHash("0x01"), nil
}

type stubWrapper struct{}

func (stubWrapper) Wrap(ctx context.Context, amount *big.Int) error { return nil }

type stubChain struct {
	balances map[common.Address]*big.Int
}

func (c *stubChain) BalanceOf(ctx context.Context, asset common.Address) (*big.Int, error) {
	if balance, ok := c.balances[asset]; ok {
		return new(big.Int).Set(balance), nil
	}
	return big.NewInt(0), nil
}

type testServer struct {
	srv    *Server
	engine *sweep.Engine
	ledger *sweep.Ledger
	chain  *stubChain
	ts     *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := sweep.DonationConfig{
		SwapRouter:    testRouter,
		Bridge:        testBridge,
		WrappedNative: testWeth,
		Recipient:     testRecipient,
		Asset:         testDonation,
		Domain:        6648936,
		AssetDecimals: 6,
	}
	registry := sweep.NewRegistry(testOperator)
	ledger := sweep.NewLedger()
	engine, err := sweep.NewEngine(cfg, registry, ledger, stubSwapper{}, stubBridger{}, stubWrapper{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	store, err := storage.Open("file:server_test_" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	auth, err := NewAuthenticator([]Operator{{Name: "ops", Token: "test-token", Address: testOperator}})
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	chain := &stubChain{balances: map[common.Address]*big.Int{}}
	srv, err := New(Config{ListenAddress: ":0"}, engine, ledger, store, chain, log.New(bytes.NewBuffer(nil), "", 0), auth)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{srv: srv, engine: engine, ledger: ledger, chain: chain, ts: ts}
}

func (s *testServer) request(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, s.ts.URL+path, &payload)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	resp := s.request(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestAdminRequiresToken(t *testing.T) {
	s := newTestServer(t)
	resp := s.request(t, http.MethodGet, "/admin/sweepers", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	resp = s.request(t, http.MethodGet, "/admin/sweepers", "wrong-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestConfigSurface(t *testing.T) {
	s := newTestServer(t)
	resp := s.request(t, http.MethodGet, "/config", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["asset"] != testDonation.Hex() {
		t.Fatalf("unexpected asset: %v", body["asset"])
	}
	if body["recipient"] != testRecipient.Hex() {
		t.Fatalf("unexpected recipient: %v", body["recipient"])
	}
}

func TestSweeperLifecycle(t *testing.T) {
	s := newTestServer(t)
	target := common.HexToAddress("0x2000000000000000000000000000000000000002")

	resp := s.request(t, http.MethodPost, "/admin/sweepers/add", "test-token", map[string]string{"address": target.Hex()})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("add: unexpected status %d", resp.StatusCode)
	}
	// Duplicate add conflicts.
	resp = s.request(t, http.MethodPost, "/admin/sweepers/add", "test-token", map[string]string{"address": target.Hex()})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate add: unexpected status %d", resp.StatusCode)
	}
	resp = s.request(t, http.MethodGet, "/admin/sweepers", "test-token", nil)
	var list struct {
		Sweepers []string `json:"sweepers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Sweepers) != 2 {
		t.Fatalf("unexpected members: %+v", list.Sweepers)
	}
	resp = s.request(t, http.MethodPost, "/admin/sweepers/remove", "test-token", map[string]string{"address": target.Hex()})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("remove: unexpected status %d", resp.StatusCode)
	}
	resp = s.request(t, http.MethodPost, "/admin/sweepers/remove", "test-token", map[string]string{"address": target.Hex()})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("missing remove: unexpected status %d", resp.StatusCode)
	}
}

func TestSweepShortForm(t *testing.T) {
	s := newTestServer(t)
	s.chain.balances[testDonation] = big.NewInt(1_000_000)

	resp := s.request(t, http.MethodPost, "/admin/sweep", "test-token", map[string]any{
		"asset":     testDonation.Hex(),
		"amount_in": "1000000",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["amount_forwarded"] != "1000000" {
		t.Fatalf("unexpected forwarded amount: %v", body["amount_forwarded"])
	}
	if body["swapped"] != false {
		t.Fatalf("expected direct sweep, got %v", body["swapped"])
	}
	// History records the sweep.
	resp = s.request(t, http.MethodGet, "/admin/sweeps", "test-token", nil)
	var history struct {
		Sweeps []map[string]any `json:"sweeps"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Sweeps) != 1 {
		t.Fatalf("unexpected history: %+v", history.Sweeps)
	}
	if history.Sweeps[0]["caller"] != testOperator.Hex() {
		t.Fatalf("unexpected caller: %v", history.Sweeps[0]["caller"])
	}
}

func TestSweepLongForm(t *testing.T) {
	s := newTestServer(t)
	s.chain.balances[testToken] = big.NewInt(2_000_000)

	resp := s.request(t, http.MethodPost, "/admin/sweep", "test-token", map[string]any{
		"asset":          testToken.Hex(),
		"fee_tier":       3000,
		"amount_in":      "2000000",
		"min_amount_out": "1900000",
		"slippage_bps":   50,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["amount_forwarded"] != "1900000" {
		t.Fatalf("unexpected forwarded amount: %v", body["amount_forwarded"])
	}
	if body["swapped"] != true {
		t.Fatalf("expected swap, got %v", body["swapped"])
	}
}

func TestSweepErrorMapping(t *testing.T) {
	s := newTestServer(t)
	// No chain balance: custody precondition fails with conflict.
	resp := s.request(t, http.MethodPost, "/admin/sweep", "test-token", map[string]any{
		"asset":     testDonation.Hex(),
		"amount_in": "1000000",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("insufficient balance: unexpected status %d", resp.StatusCode)
	}
	// Zero amount is a validation failure.
	resp = s.request(t, http.MethodPost, "/admin/sweep", "test-token", map[string]any{
		"asset":     testDonation.Hex(),
		"amount_in": "0",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("zero amount: unexpected status %d", resp.StatusCode)
	}
	// Slippage without a swap bound on a swapped asset is rejected up front.
	resp = s.request(t, http.MethodPost, "/admin/sweep", "test-token", map[string]any{
		"asset":        testToken.Hex(),
		"amount_in":    "1000",
		"slippage_bps": 50,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing bound: unexpected status %d", resp.StatusCode)
	}
}

func TestPauseResume(t *testing.T) {
	s := newTestServer(t)
	s.chain.balances[testDonation] = big.NewInt(1_000_000)

	resp := s.request(t, http.MethodPost, "/admin/pause", "test-token", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("pause: unexpected status %d", resp.StatusCode)
	}
	resp = s.request(t, http.MethodPost, "/admin/sweep", "test-token", map[string]any{
		"asset":     testDonation.Hex(),
		"amount_in": "1000000",
	})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("paused sweep: unexpected status %d", resp.StatusCode)
	}
	resp = s.request(t, http.MethodPost, "/admin/resume", "test-token", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("resume: unexpected status %d", resp.StatusCode)
	}
	resp = s.request(t, http.MethodPost, "/admin/sweep", "test-token", map[string]any{
		"asset":     testDonation.Hex(),
		"amount_in": "1000000",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resumed sweep: unexpected status %d", resp.StatusCode)
	}
}
