package registry

import (
	"dropchain/core/events"
	"dropchain/core/types"
)

// EventTypeMint is emitted when units of a token are minted to an account.
const EventTypeMint = "registry.token.minted"

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

// MintEvent returns the structured event payload for a mint.
func MintEvent(tokenID string, recipient string, amount string) *types.Event {
	return &types.Event{
		Type: EventTypeMint,
		Attributes: map[string]string{
			"tokenId":   tokenID,
			"recipient": recipient,
			"amount":    amount,
		},
	}
}
