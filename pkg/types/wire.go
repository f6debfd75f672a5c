package types

import "encoding/json"

// Event kinds sent by the client.
const (
	EventAuthenticate = "authenticate"
	EventJoinRole     = "joinRole"
)

// Event kinds received from the server. EventConnect and EventConnectError
// are synthesized by the transport on (re)connection and dial failure so the
// consumer observes the full connection lifecycle on one channel.
const (
	EventConnect           = "connect"
	EventConnectError      = "connect_error"
	EventAuthenticated     = "authenticated"
	EventNewOrder          = "newOrder"
	EventOrderStatusUpdate = "orderStatusUpdate"
	EventOrderDeleted      = "orderDeleted"
	EventPaymentCompleted  = "paymentCompleted"
)

// Event is the wire envelope for every message in either direction.
// Payload stays raw until the event kind is known; unrecognized kinds are
// dropped without error so newer servers remain compatible.
type Event struct {
	Kind    string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OrderRef is the order reference embedded in domain event payloads.
type OrderRef struct {
	ID    string    `json:"_id"`
	Table *TableRef `json:"table,omitempty"`
}

// TableRef identifies the restaurant table an order belongs to.
type TableRef struct {
	Number int `json:"number"`
}

// AuthenticatePayload is the outbound handshake message body.
type AuthenticatePayload struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// JoinRolePayload subscribes the connection to its role's event group.
type JoinRolePayload struct {
	Role Role `json:"role"`
}

// AuthenticatedPayload is the server's handshake acknowledgement.
type AuthenticatedPayload struct {
	Success bool `json:"success"`
}

// NewOrderPayload announces a newly placed order.
type NewOrderPayload struct {
	Message      string   `json:"message"`
	Order        OrderRef `json:"order"`
	CustomerName string   `json:"customerName"`
}

// OrderStatusUpdatePayload announces an order moving between kitchen states.
type OrderStatusUpdatePayload struct {
	Message   string   `json:"message"`
	Order     OrderRef `json:"order"`
	NewStatus string   `json:"newStatus"`
}

// OrderDeletedPayload announces a cancelled order.
type OrderDeletedPayload struct {
	Message      string   `json:"message"`
	Order        OrderRef `json:"order"`
	CustomerName string   `json:"customerName"`
	TableNumber  int      `json:"tableNumber"`
}

// PaymentCompletedPayload announces a settled payment. Routing restricts
// this event to admin and cashier roles.
type PaymentCompletedPayload struct {
	Message       string   `json:"message"`
	Amount        float64  `json:"amount"`
	PaymentMethod string   `json:"paymentMethod"`
	Order         OrderRef `json:"order"`
}

// ConnectErrorPayload carries the reason for a failed dial or dropped link.
type ConnectErrorPayload struct {
	Reason string `json:"reason"`
}
