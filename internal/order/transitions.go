package order

import "payment-service/internal/model"

// successors lists the legal next states for every order state. Cancelled is
// reachable from every state and is not listed.
var successors = map[model.OrderState][]model.OrderState{
	model.OrderCreated:           {model.OrderAddingItems},
	model.OrderAddingItems:       {model.OrderArrangingPayment},
	model.OrderArrangingPayment:  {model.OrderPaymentAuthorized, model.OrderPaymentSettled, model.OrderDeclined, model.OrderAddingItems},
	model.OrderPaymentAuthorized: {model.OrderPaymentSettled},
	model.OrderPaymentSettled:    {model.OrderShipped},
	model.OrderShipped:           {model.OrderDelivered},
	model.OrderDelivered:         {},
	model.OrderDeclined:          {},
	model.OrderCancelled:         {},
}

// CanTransition reports whether from -> to is a legal state change. A
// request for the current state is not a transition and returns false.
func CanTransition(from, to model.OrderState) bool {
	allowed, known := successors[from]
	if !known {
		return false
	}
	if to == model.OrderCancelled {
		return from != model.OrderCancelled
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
