package sweep

import (
	"github.com/ethereum/go-ethereum/common"

	"xdonate/core/types"
)

const (
	EventTypeSweeperAdded   = "sweep.sweeper.added"
	EventTypeSweeperRemoved = "sweep.sweeper.removed"
	EventTypeSwept          = "sweep.swept"
)

type sweepEvent struct {
	evt *types.Event
}

func (e sweepEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e sweepEvent) Event() *types.Event { return e.evt }

// NewSweeperAddedEvent returns the canonical payload emitted when a principal
// is added to the sweeper set.
func NewSweeperAddedEvent(target, addedBy common.Address) *types.Event {
	return &types.Event{
		Type: EventTypeSweeperAdded,
		Attributes: map[string]string{
			"sweeper": target.Hex(),
			"addedBy": addedBy.Hex(),
		},
	}
}

// NewSweeperRemovedEvent returns the canonical payload emitted when a
// principal is removed from the sweeper set.
func NewSweeperRemovedEvent(target, removedBy common.Address) *types.Event {
	return &types.Event{
		Type: EventTypeSweeperRemoved,
		Attributes: map[string]string{
			"sweeper":   target.Hex(),
			"removedBy": removedBy.Hex(),
		},
	}
}

// NewSweptEvent returns the canonical payload emitted when a sweep completes.
func NewSweptEvent(caller common.Address, receipt *SweepReceipt) *types.Event {
	attrs := make(map[string]string)
	if receipt != nil {
		attrs["asset"] = receipt.Asset.Hex()
		attrs["transferId"] = receipt.TransferID.Hex()
		if receipt.AmountIn != nil {
			attrs["amountIn"] = receipt.AmountIn.String()
		}
		if receipt.AmountForwarded != nil {
			attrs["amountForwarded"] = receipt.AmountForwarded.String()
		}
	}
	attrs["caller"] = caller.Hex()
	return &types.Event{Type: EventTypeSwept, Attributes: attrs}
}
