package orders

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusProcessing, StatusShipped, true},
		{StatusProcessing, StatusCancelled, true},
		{StatusProcessing, StatusDelivered, false},
		{StatusShipped, StatusOutForDelivery, true},
		{StatusShipped, StatusCancelled, false},
		{StatusOutForDelivery, StatusDelivered, true},
		{StatusDelivered, StatusReturned, true},
		{StatusDelivered, StatusProcessing, false},
		{StatusCancelled, StatusProcessing, false},
		{StatusReturned, StatusDelivered, false},
		{StatusShipped, StatusShipped, true},
		{Status("Lost"), Status("Lost"), false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCanTransitionPayment(t *testing.T) {
	tests := []struct {
		from, to PaymentStatus
		want     bool
	}{
		{PaymentPending, PaymentPaid, true},
		{PaymentPending, PaymentFailed, true},
		{PaymentFailed, PaymentPaid, true},
		{PaymentPaid, PaymentRefunded, true},
		{PaymentPaid, PaymentFailed, false},
		{PaymentPaid, PaymentPending, false},
		{PaymentRefunded, PaymentPaid, false},
		{PaymentPending, PaymentRefunded, false},
	}
	for _, tt := range tests {
		if got := CanTransitionPayment(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransitionPayment(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestPaymentStatusesInto(t *testing.T) {
	got := PaymentStatusesInto(PaymentPaid)
	if len(got) != 2 || got[0] != PaymentPending || got[1] != PaymentFailed {
		t.Fatalf("PaymentStatusesInto(Paid) = %v", got)
	}
	if got := PaymentStatusesInto(PaymentRefunded); len(got) != 1 || got[0] != PaymentPaid {
		t.Fatalf("PaymentStatusesInto(Refunded) = %v", got)
	}
	if got := StatusesInto(StatusDelivered); len(got) != 3 {
		t.Fatalf("StatusesInto(Delivered) = %v", got)
	}
}
