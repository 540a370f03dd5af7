package sweep

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"xdonate/core/events"
)

func TestRegistryAddAndRemove(t *testing.T) {
	capture := &events.Capture{}
	registry := NewRegistry(testDeployer)
	registry.SetEmitter(capture)

	if err := registry.Add(testDeployer, testStranger); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !registry.IsSweeper(testStranger) {
		t.Fatalf("target should be a member after add")
	}
	if err := registry.Add(testDeployer, testStranger); !errors.Is(err, ErrAlreadySweeper) {
		t.Fatalf("expected ErrAlreadySweeper, got %v", err)
	}

	if err := registry.Remove(testDeployer, testStranger); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if registry.IsSweeper(testStranger) {
		t.Fatalf("target should not be a member after remove")
	}
	if err := registry.Remove(testDeployer, testStranger); !errors.Is(err, ErrNotSweeper) {
		t.Fatalf("expected ErrNotSweeper, got %v", err)
	}

	evts := capture.Events()
	if len(evts) != 2 {
		t.Fatalf("expected two events, got %d", len(evts))
	}
	added := evts[0].(sweepEvent).Event()
	if added.Type != EventTypeSweeperAdded || added.Attributes["sweeper"] != testStranger.Hex() || added.Attributes["addedBy"] != testDeployer.Hex() {
		t.Fatalf("unexpected added event: %+v", added)
	}
	removed := evts[1].(sweepEvent).Event()
	if removed.Type != EventTypeSweeperRemoved || removed.Attributes["removedBy"] != testDeployer.Hex() {
		t.Fatalf("unexpected removed event: %+v", removed)
	}
}

func TestRegistryMutationsRequireMembership(t *testing.T) {
	registry := NewRegistry(testDeployer)
	if err := registry.Add(testStranger, testStranger); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for add, got %v", err)
	}
	if err := registry.Remove(testStranger, testDeployer); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for remove, got %v", err)
	}
}

func TestRegistrySelfAndLastMemberRemovalPermitted(t *testing.T) {
	registry := NewRegistry(testDeployer)
	if err := registry.Remove(testDeployer, testDeployer); err != nil {
		t.Fatalf("self-removal of the last member should be permitted: %v", err)
	}
	if registry.IsSweeper(testDeployer) {
		t.Fatalf("member should be gone")
	}
	if len(registry.Members()) != 0 {
		t.Fatalf("set should be empty")
	}
	// An emptied set can no longer be mutated through the gated path.
	if err := registry.Add(testDeployer, testDeployer); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on emptied set, got %v", err)
	}
}

func TestRegistrySeedAndMembers(t *testing.T) {
	registry := NewRegistry(testDeployer)
	other := common.HexToAddress("0x0300000000000000000000000000000000000003")
	registry.Seed(other)
	members := registry.Members()
	if len(members) != 2 {
		t.Fatalf("expected two members, got %d", len(members))
	}
	if members[0].Hex() > members[1].Hex() {
		t.Fatalf("members should be sorted")
	}
}
