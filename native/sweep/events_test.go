package sweep

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestNewSweptEventAttributes(t *testing.T) {
	transferID := common.HexToHash("0x01")
	evt := NewSweptEvent(testDeployer, &SweepReceipt{
		Asset:           testToken,
		AmountIn:        big.NewInt(500),
		AmountForwarded: big.NewInt(420),
		TransferID:      transferID,
		Swapped:         true,
	})
	if evt.Type != EventTypeSwept {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	want := map[string]string{
		"asset":           testToken.Hex(),
		"amountIn":        "500",
		"amountForwarded": "420",
		"transferId":      transferID.Hex(),
		"caller":          testDeployer.Hex(),
	}
	for key, value := range want {
		if evt.Attributes[key] != value {
			t.Fatalf("attribute %s = %q, want %q", key, evt.Attributes[key], value)
		}
	}
}

func TestNewSweptEventNilReceipt(t *testing.T) {
	evt := NewSweptEvent(testDeployer, nil)
	if evt.Type != EventTypeSwept {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["caller"] != testDeployer.Hex() {
		t.Fatalf("caller attribute missing")
	}
}
