package enums

import "slices"

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder OutboxAggregateType = "order"
	AggregateCart  OutboxAggregateType = "cart"
)

var aggregateTypes = []OutboxAggregateType{AggregateOrder, AggregateCart}

func (a OutboxAggregateType) IsValid() bool { return slices.Contains(aggregateTypes, a) }

// OutboxEventType names the domain event carried by an outbox row. Values are
// stored, so renaming one strands unpublished rows.
type OutboxEventType string

const (
	EventOrderConfirmed     OutboxEventType = "order.confirmed"
	EventOrderStatusChanged OutboxEventType = "order.status_changed"
)

var outboxEventTypes = []OutboxEventType{EventOrderConfirmed, EventOrderStatusChanged}

func (e OutboxEventType) IsValid() bool { return slices.Contains(outboxEventTypes, e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(outboxEventTypes, "event type", value)
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(aggregateTypes, "aggregate type", value)
}
