// Package conversation holds the chat session state: an append-only message
// ledger and the controller that drives send round-trips against an
// injected delivery collaborator.
package conversation

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// DeliveryState tracks the transport outcome of a message.
type DeliveryState string

const (
	DeliverySending DeliveryState = "sending"
	DeliverySent    DeliveryState = "sent"
	DeliveryError   DeliveryState = "error"
)

// Metadata carries provenance for assistant replies.
type Metadata struct {
	Provider         string
	ProcessingTimeMs int64
	DataSourcesUsed  []string
}

// Message is one entry in the conversation ledger.
type Message struct {
	ID        int64
	Role      Role
	Content   string
	Timestamp time.Time
	Delivery  DeliveryState
	Meta      *Metadata
}
