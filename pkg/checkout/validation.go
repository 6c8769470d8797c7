package checkout

import (
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// LineCurrency pairs a cart line with the currency it is priced in.
type LineCurrency struct {
	VariantID string
	Currency  types.Currency
}

// CompositionViolation is returned to callers when a line does not match the
// payment family.
type CompositionViolation struct {
	VariantID    string `json:"variant_id"`
	CurrencyCode string `json:"currency_code"`
}

// ValidateCurrency rejects carts whose derived currency is mixed.
func ValidateCurrency(currencyCode string, currencies []string) error {
	if currencyCode != types.MixedCurrencyCode {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeMixedCurrency, "cart contains mixed currencies").
		WithDetails(map[string]any{"currencies": currencies})
}

// ResolvePaymentMethod picks the payment method a cart must settle with. A
// points cart always pays in points; a fiat cart cannot be paid with points.
// Every line must belong to the chosen family.
func ResolvePaymentMethod(cartCurrency types.Currency, lines []LineCurrency, requested string) (enums.PaymentMethod, error) {
	var asked enums.PaymentMethod
	if raw := strings.ToLower(strings.TrimSpace(requested)); raw != "" {
		parsed, err := enums.ParsePaymentMethod(raw)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method")
		}
		asked = parsed
	}

	method := enums.PaymentMethodFiat
	family := enums.CurrencyFamilyFiat
	if cartCurrency.IsPoints() {
		method = enums.PaymentMethodPoints
		family = enums.CurrencyFamilyPoints
	} else if asked == enums.PaymentMethodPoints {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "points payment requires a points cart").
			WithDetails(map[string]any{"currency_code": cartCurrency.Code})
	}

	var violations []CompositionViolation
	for _, line := range lines {
		if line.Currency.Family != family {
			violations = append(violations, CompositionViolation{
				VariantID:    line.VariantID,
				CurrencyCode: line.Currency.Code,
			})
		}
	}
	if len(violations) > 0 {
		return "", pkgerrors.New(pkgerrors.CodeInvalidComposition, "cart composition invalid for payment method").
			WithDetails(map[string]any{
				"payment_method": method,
				"violations":     violations,
			})
	}
	return method, nil
}
