package enums

import "fmt"

// PaymentMethod describes how a customer intends to settle an order. Only
// the bKash mobile wallet drives the reconciliation engine; cash on delivery
// is settled offline and card payments are handled by a separate processor.
type PaymentMethod string

const (
	PaymentMethodCard  PaymentMethod = "card"
	PaymentMethodCOD   PaymentMethod = "cod"
	PaymentMethodBkash PaymentMethod = "bkash"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCard,
	PaymentMethodCOD,
	PaymentMethodBkash,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}

// IsPrepaid reports whether the method requires settlement before fulfillment.
func (p PaymentMethod) IsPrepaid() bool {
	return p != PaymentMethodCOD
}
