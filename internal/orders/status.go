package orders

// fulfillmentTransitions lists the statuses an admin may move an order to.
// Re-setting the current status is always allowed (tracking id refresh).
var fulfillmentTransitions = map[Status][]Status{
	StatusProcessing:     {StatusShipped, StatusCancelled},
	StatusShipped:        {StatusOutForDelivery, StatusDelivered, StatusReturned},
	StatusOutForDelivery: {StatusDelivered, StatusReturned},
	StatusDelivered:      {StatusReturned},
	StatusCancelled:      {},
	StatusReturned:       {},
}

// paymentTransitions: Failed is informational and never blocks a retry.
// Paid only moves to Refunded.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:  {PaymentPaid, PaymentFailed},
	PaymentFailed:   {PaymentPaid, PaymentFailed},
	PaymentPaid:     {PaymentRefunded},
	PaymentRefunded: {},
}

// ValidStatus reports whether s is a known fulfillment status.
func ValidStatus(s Status) bool {
	_, ok := fulfillmentTransitions[s]
	return ok
}

// ValidPaymentStatus reports whether s is a known payment status.
func ValidPaymentStatus(s PaymentStatus) bool {
	_, ok := paymentTransitions[s]
	return ok
}

// ValidPaymentMethod reports whether m is a supported payment method.
func ValidPaymentMethod(m PaymentMethod) bool {
	return m == MethodCOD || m == MethodRazorpay
}

// CanTransition reports whether an admin may move an order from -> to.
func CanTransition(from, to Status) bool {
	if from == to {
		return ValidStatus(from)
	}
	for _, s := range fulfillmentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransitionPayment reports whether payment status may move from -> to.
func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, s := range paymentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StatusesInto returns every fulfillment status that may legally move to target,
// including target itself. Used as the compare-and-swap precondition.
func StatusesInto(target Status) []Status {
	out := []Status{}
	for _, from := range orderedStatuses {
		if CanTransition(from, target) {
			out = append(out, from)
		}
	}
	return out
}

// PaymentStatusesInto returns every payment status that may legally move to target.
func PaymentStatusesInto(target PaymentStatus) []PaymentStatus {
	out := []PaymentStatus{}
	for _, from := range orderedPaymentStatuses {
		if CanTransitionPayment(from, target) {
			out = append(out, from)
		}
	}
	return out
}

var orderedStatuses = []Status{
	StatusProcessing, StatusShipped, StatusOutForDelivery,
	StatusDelivered, StatusCancelled, StatusReturned,
}

var orderedPaymentStatuses = []PaymentStatus{
	PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded,
}
