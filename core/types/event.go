package types

// Event represents a typed event emitted by the forwarder during sweep and
// registry transitions.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
