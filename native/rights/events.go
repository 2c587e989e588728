package rights

import (
	"dropchain/core/events"
	"dropchain/core/types"
)

const (
	// EventTypePublishRequest is emitted when a publisher files a new request.
	EventTypePublishRequest = "rights.request.published"
	// EventTypeApprove is emitted when a producer approves a request.
	EventTypeApprove = "rights.request.approved"
	// EventTypeDisapprove is emitted when a producer revokes an approval.
	EventTypeDisapprove = "rights.request.disapproved"
	// EventTypeCancel is emitted when a publisher withdraws a pending request.
	EventTypeCancel = "rights.request.cancelled"
)

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

// PublishRequestEvent returns the payload announcing a new request.
func PublishRequestEvent(requestID string, tokenID string) *types.Event {
	return &types.Event{
		Type: EventTypePublishRequest,
		Attributes: map[string]string{
			"requestId": requestID,
			"tokenId":   tokenID,
		},
	}
}

// ApproveEvent returns the payload announcing an approval.
func ApproveEvent(requestID string) *types.Event {
	return &types.Event{
		Type: EventTypeApprove,
		Attributes: map[string]string{
			"requestId": requestID,
		},
	}
}

// DisapproveEvent returns the payload announcing a revoked approval.
func DisapproveEvent(requestID string) *types.Event {
	return &types.Event{
		Type: EventTypeDisapprove,
		Attributes: map[string]string{
			"requestId": requestID,
		},
	}
}

// CancelEvent returns the payload announcing a withdrawn request.
func CancelEvent(requestID string) *types.Event {
	return &types.Event{
		Type: EventTypeCancel,
		Attributes: map[string]string{
			"requestId": requestID,
		},
	}
}
