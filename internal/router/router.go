// Package router classifies inbound protocol events into notification drafts
// and presentation policies, keyed by event kind and the authenticated role.
package router

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"posfeed/pkg/types"
)

// Policy decides how an event is surfaced to the user: the toast lifetime
// and whether the audio cue plays. It is independent of the notification
// being recorded in the store.
type Policy struct {
	Duration time.Duration
	Sound    bool
}

// routeKey addresses one cell of the routing table.
type routeKey struct {
	kind string
	role types.Role
}

// route is one routing table cell. include=false is a hard drop: no draft,
// no policy, not a muted toast.
type route struct {
	include  bool
	kind     types.Kind
	duration time.Duration
	sound    bool
	format   func(info eventInfo) string
}

// eventInfo is the normalized view of a domain event payload, extracted
// before the table lookup so formatters stay payload-shape agnostic.
type eventInfo struct {
	orderID      string
	customerName string
	tableNumber  int
	newStatus    string
	amount       float64
	method       string
	message      string
}

// Notification id suffixes, one per domain event kind. Ids are stable per
// order+event-kind pair; the store intentionally does not deduplicate on them.
const (
	suffixNewOrder     = "-newOrder"
	suffixStatusUpdate = "-statusUpdate"
	suffixDeleted      = "-deleted"
	suffixPayment      = "-payment"
)

func formatNewOrder(info eventInfo) string {
	return fmt.Sprintf("New order from %s at Table %d", info.customerName, info.tableNumber)
}

func formatStatusUpdate(info eventInfo) string {
	return fmt.Sprintf("Order %s is now %s", info.orderID, info.newStatus)
}

func formatDeleted(info eventInfo) string {
	return fmt.Sprintf("Order for %s at Table %d was cancelled", info.customerName, info.tableNumber)
}

func formatPayment(info eventInfo) string {
	return fmt.Sprintf("Payment of $%.2f received via %s", info.amount, info.method)
}

// allRoles drives table construction so adding a role forces a row for every
// event kind.
var allRoles = []types.Role{
	types.RoleAdmin, types.RoleCashier, types.RoleKitchen, types.RoleStaff, types.RoleOther,
}

// buildTable lays out the full (eventKind, role) grid. Every combination has
// a cell, so a missing lookup can only mean an unrecognized event kind.
func buildTable() map[routeKey]route {
	table := make(map[routeKey]route)

	fill := func(kind string, r route) {
		for _, role := range allRoles {
			table[routeKey{kind, role}] = r
		}
	}

	fill(types.EventNewOrder, route{
		include:  true,
		kind:     types.KindInfo,
		duration: 6 * time.Second,
		sound:    true,
		format:   formatNewOrder,
	})
	fill(types.EventOrderStatusUpdate, route{
		include:  true,
		kind:     types.KindInfo,
		duration: 4 * time.Second,
		sound:    false,
		format:   formatStatusUpdate,
	})
	fill(types.EventOrderDeleted, route{
		include:  true,
		kind:     types.KindWarning,
		duration: 6 * time.Second,
		sound:    true,
		format:   formatDeleted,
	})

	// Payment events are visible to money-handling roles only. Everyone
	// else gets a hard drop: no log entry and no presentation.
	fill(types.EventPaymentCompleted, route{include: false})
	payment := route{
		include:  true,
		kind:     types.KindSuccess,
		duration: 8 * time.Second,
		sound:    true,
		format:   formatPayment,
	}
	table[routeKey{types.EventPaymentCompleted, types.RoleAdmin}] = payment
	table[routeKey{types.EventPaymentCompleted, types.RoleCashier}] = payment

	return table
}

// Router holds the fixed routing table. It carries no mutable state; one
// instance serves the whole connection lifetime.
type Router struct {
	table map[routeKey]route
	log   zerolog.Logger
}

// New creates a router with the default routing table.
func New(logger zerolog.Logger) *Router {
	return &Router{
		table: buildTable(),
		log:   logger.With().Str("component", "router").Logger(),
	}
}

// Classify maps an inbound domain event to a notification draft and a
// presentation policy for the given role. Both results are nil when the
// event is dropped: unknown kind, role-gated, or malformed payload. A
// non-nil error only reports why a payload failed to parse; callers drop
// the event either way.
func (r *Router) Classify(kind string, payload []byte, role types.Role) (*types.Notification, *Policy, error) {
	rt, ok := r.table[routeKey{kind, role}]
	if !ok {
		// Forward-compatible ignore: newer servers may emit kinds this
		// client has no row for.
		r.log.Debug().Str("event", kind).Str("role", string(role)).Msg("unrecognized event dropped")
		return nil, nil, nil
	}
	if !rt.include {
		r.log.Debug().Str("event", kind).Str("role", string(role)).Msg("event not routed for role")
		return nil, nil, nil
	}

	info, suffix, err := parse(kind, payload)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, kind, err)
	}

	id := info.orderID
	if id == "" {
		id = uuid.NewString()
	}

	draft := &types.Notification{
		ID:        id + suffix,
		Message:   rt.format(info),
		Kind:      rt.kind,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	policy := &Policy{Duration: rt.duration, Sound: rt.sound}
	return draft, policy, nil
}

// parse extracts the normalized event info and the id suffix for a kind.
func parse(kind string, payload []byte) (eventInfo, string, error) {
	switch kind {
	case types.EventNewOrder:
		var p types.NewOrderPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return eventInfo{}, "", err
		}
		info := eventInfo{
			orderID:      p.Order.ID,
			customerName: p.CustomerName,
			message:      p.Message,
		}
		if p.Order.Table != nil {
			info.tableNumber = p.Order.Table.Number
		}
		return info, suffixNewOrder, nil

	case types.EventOrderStatusUpdate:
		var p types.OrderStatusUpdatePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return eventInfo{}, "", err
		}
		return eventInfo{
			orderID:   p.Order.ID,
			newStatus: p.NewStatus,
			message:   p.Message,
		}, suffixStatusUpdate, nil

	case types.EventOrderDeleted:
		var p types.OrderDeletedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return eventInfo{}, "", err
		}
		return eventInfo{
			orderID:      p.Order.ID,
			customerName: p.CustomerName,
			tableNumber:  p.TableNumber,
			message:      p.Message,
		}, suffixDeleted, nil

	case types.EventPaymentCompleted:
		var p types.PaymentCompletedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return eventInfo{}, "", err
		}
		return eventInfo{
			orderID: p.Order.ID,
			amount:  p.Amount,
			method:  p.PaymentMethod,
			message: p.Message,
		}, suffixPayment, nil
	}

	return eventInfo{}, "", fmt.Errorf("no parser for event kind %q", kind)
}
