package settlement

import (
	"dropchain/core/events"
	"dropchain/core/types"
)

// EventTypePurchase is emitted once per successfully settled purchase.
const EventTypePurchase = "settlement.purchase.settled"

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

// PurchaseEvent returns the payload describing a settled purchase.
func PurchaseEvent(variant, tokenID, buyer, total, platformShare string) *types.Event {
	return &types.Event{
		Type: EventTypePurchase,
		Attributes: map[string]string{
			"variant":       variant,
			"tokenId":       tokenID,
			"buyer":         buyer,
			"total":         total,
			"platformShare": platformShare,
		},
	}
}
