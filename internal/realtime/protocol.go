package realtime

import (
	"encoding/json"

	"github.com/nexabase-io/nexabase/internal/records"
)

// MessageType is the frame discriminator on both directions
type MessageType string

const (
	// Client to server
	MessageSubscribe   MessageType = "Subscribe"
	MessageUnsubscribe MessageType = "Unsubscribe"
	MessagePing        MessageType = "Ping"

	// Server to client
	MessageSubscriptionConfirmed MessageType = "SubscriptionConfirmed"
	MessageSubscriptionError     MessageType = "SubscriptionError"
	MessageEvent                 MessageType = "Event"
	MessagePong                  MessageType = "Pong"
	MessageAdminBroadcast        MessageType = "AdminBroadcast"
)

// ClientFrame is an inbound frame; Data is decoded per Type
type ClientFrame struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnsubscribeData identifies the subscription to remove
type UnsubscribeData struct {
	SubscriptionID string `json:"subscription_id"`
}

// ServerFrame is an outbound frame
type ServerFrame struct {
	Type MessageType `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// SubscriptionConfirmedData echoes the registered subscription
type SubscriptionConfirmedData struct {
	SubscriptionID string           `json:"subscription_id"`
	Collection     string           `json:"collection_name"`
	Type           SubscriptionType `json:"subscription_type"`
}

// SubscriptionErrorData reports why a subscribe was rejected
type SubscriptionErrorData struct {
	SubscriptionID string `json:"subscription_id"`
	Error          string `json:"error"`
}

// EventData is the change notification delivered to one subscription
type EventData struct {
	SubscriptionID string         `json:"subscription_id"`
	Collection     string         `json:"collection_name"`
	Action         records.Action `json:"action"`
	RecordID       int64          `json:"record_id"`
	Record         records.Record `json:"record,omitempty"`
	OldRecord      records.Record `json:"old_record,omitempty"`
}

func confirmedFrame(sub *SubscriptionData) ServerFrame {
	return ServerFrame{
		Type: MessageSubscriptionConfirmed,
		Data: SubscriptionConfirmedData{
			SubscriptionID: sub.ID,
			Collection:     sub.Collection,
			Type:           sub.Type,
		},
	}
}

func errorFrame(subscriptionID, message string) ServerFrame {
	return ServerFrame{
		Type: MessageSubscriptionError,
		Data: SubscriptionErrorData{SubscriptionID: subscriptionID, Error: message},
	}
}

func eventFrame(subscriptionID string, e records.Event) ServerFrame {
	return ServerFrame{
		Type: MessageEvent,
		Data: EventData{
			SubscriptionID: subscriptionID,
			Collection:     e.Collection,
			Action:         e.Action,
			RecordID:       e.RecordID,
			Record:         e.Record,
			OldRecord:      e.OldRecord,
		},
	}
}
