package laco

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

const (
	// JumpToState asks the registry to restore a recorded snapshot.
	JumpToState = "JUMP_TO_STATE"
	// JumpToAction asks the registry to restore the snapshot recorded
	// after a given action.
	JumpToAction = "JUMP_TO_ACTION"
)

// ErrInvalidSnapshot is reported when a jump request carries a snapshot that
// cannot be decoded.
var ErrInvalidSnapshot = errors.New("laco: invalid snapshot")

// Bridge is an external timeline tool that records committed transitions and
// may later ask for a jump back to a recorded snapshot.
//
// Send is fire-and-forget from the registry's point of view: a returned error
// is logged and never changes the outcome of a transition.
type Bridge interface {
	// Init is called once on attach with the full current snapshot.
	Init(snapshot map[int]any) error
	// Send records a committed transition.
	Send(label string, snapshot map[int]any) error
	// Subscribe registers the handler for inbound requests.
	Subscribe(fn func(BridgeMessage))
}

// BridgeMessage is an inbound request from the timeline tool.
type BridgeMessage struct {
	// Type is the payload type, JumpToState or JumpToAction.
	Type string `json:"type"`
	// State is the JSON snapshot keyed by store id.
	State string `json:"state"`
}

// AttachBridge connects a timeline bridge, initialises it with the current
// snapshot and starts routing its jump requests to registered stores.
func (r *Registry) AttachBridge(bridge Bridge) error {
	if bridge == nil {
		return nil
	}

	r.bridgeMu.Lock()
	r.bridge = bridge
	r.bridgeMu.Unlock()

	bridge.Subscribe(r.handleBridgeMessage)
	return bridge.Init(r.State())
}

func (r *Registry) currentBridge() Bridge {
	r.bridgeMu.RLock()
	defer r.bridgeMu.RUnlock()
	return r.bridge
}

// send informs the bridge of a committed transition. Failures are logged.
func (r *Registry) send(label string) {
	bridge := r.currentBridge()
	if bridge == nil {
		return
	}
	if err := bridge.Send(label, r.State()); err != nil {
		r.logger.Error("laco: bridge send failed", "label", label, "error", err)
	}
}

func (r *Registry) handleBridgeMessage(msg BridgeMessage) {
	if msg.Type != JumpToState && msg.Type != JumpToAction {
		return
	}
	if err := r.Restore(msg.Type, []byte(msg.State)); err != nil {
		r.logger.Error("laco: restore failed", "type", msg.Type, "error", err)
	}
}

// Restore replays a JSON snapshot keyed by store id. Every registered store
// whose id is present runs its entry through its Replace pipeline, so the
// restoration can be vetoed by middleware and notifies listeners. Stores
// are visited in id order; the first decoding error is returned after all
// stores have been visited.
func (r *Registry) Restore(action string, snapshot []byte) error {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(snapshot, &entries); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}

	var errs []error
	for _, id := range r.restorerIDs() {
		raw, ok := entries[strconv.Itoa(id)]
		if !ok {
			continue
		}
		restore := r.restorerFor(id)
		if restore == nil {
			continue
		}
		if err := restore(raw, action); err != nil {
			errs = append(errs, fmt.Errorf("store %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Dispatch forwards label to the default registry's bridge and returns value
// unchanged. Use it to label actions that do not mutate any store.
func Dispatch[V any](value V, label string) V {
	DefaultRegistry.send(label)
	return value
}
