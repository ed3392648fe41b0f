package payments

import (
	"errors"
	"fmt"
)

var (
	// ErrSignature is returned when a payment or webhook signature does not verify.
	// It never carries diagnostic detail.
	ErrSignature = errors.New("payment verification failed")
	// ErrGateway wraps every failed call to the payment gateway. Retryable by the client.
	ErrGateway = errors.New("payment gateway error")
)

// GatewayError is a non-2xx response from the gateway API.
type GatewayError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway error (status %d %s): %s", e.StatusCode, e.Code, e.Description)
}

func (e *GatewayError) Unwrap() error { return ErrGateway }
