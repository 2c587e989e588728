package types

// Event represents a typed notification emitted during state transitions.
// External consumers parse the attribute names verbatim, so the schema of
// each event constructor is stable.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
