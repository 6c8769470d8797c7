package enums

import (
	"slices"
	"strings"
)

// PaymentMethod describes how a shopper settles an order.
type PaymentMethod string

const (
	PaymentMethodPoints PaymentMethod = "points"
	PaymentMethodFiat   PaymentMethod = "fiat"
)

// paymentMethodDustAlias is what storefront clients send for points.
const paymentMethodDustAlias = "dust"

var paymentMethods = []PaymentMethod{PaymentMethodPoints, PaymentMethodFiat}

func (p PaymentMethod) String() string { return string(p) }

func (p PaymentMethod) IsValid() bool { return slices.Contains(paymentMethods, p) }

// ParsePaymentMethod accepts "dust" as an alias for points.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	if strings.EqualFold(strings.TrimSpace(value), paymentMethodDustAlias) {
		return PaymentMethodPoints, nil
	}
	return parse(paymentMethods, "payment method", value)
}
