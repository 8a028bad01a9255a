package enums

import "fmt"

// PaymentMethod names the provider that settled a payment.
type PaymentMethod string

const PaymentMethodStripe PaymentMethod = "stripe"

var validPaymentMethods = []PaymentMethod{PaymentMethodStripe}

func (p PaymentMethod) String() string {
	return string(p)
}

func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
