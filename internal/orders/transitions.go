package orders

import "github.com/angelmondragon/storefront-backend/pkg/enums"

// forward lists the single legal successor of each non-terminal status.
var forward = map[enums.OrderStatus]enums.OrderStatus{
	enums.OrderStatusPending:    enums.OrderStatusConfirmed,
	enums.OrderStatusConfirmed:  enums.OrderStatusProcessing,
	enums.OrderStatusProcessing: enums.OrderStatusShipped,
	enums.OrderStatusShipped:    enums.OrderStatusDelivered,
	enums.OrderStatusDelivered:  enums.OrderStatusCompleted,
}

var rank = map[enums.OrderStatus]int{
	enums.OrderStatusPending:    0,
	enums.OrderStatusConfirmed:  1,
	enums.OrderStatusProcessing: 2,
	enums.OrderStatusShipped:    3,
	enums.OrderStatusDelivered:  4,
	enums.OrderStatusCompleted:  5,
}

// CanTransition reports whether an admin may move an order from one status to
// another. Cancellation is allowed from any non-terminal status.
func CanTransition(from, to enums.OrderStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == enums.OrderStatusCancelled {
		return true
	}
	return forward[from] == to
}

// advanceTo returns the status tracking data implies, never moving backwards.
func advanceTo(current, target enums.OrderStatus) enums.OrderStatus {
	if current.IsTerminal() {
		return current
	}
	if rank[target] > rank[current] {
		return target
	}
	return current
}
