package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

const (
	// PointsCode is the canonical code of the in-app points currency.
	PointsCode = "dust"
	// DefaultCurrencyCode is reported for carts without items.
	DefaultCurrencyCode = "usd"
	// MixedCurrencyCode marks a cart whose items span currency families.
	MixedCurrencyCode = "mixed"

	// pointsAlias is how the catalog backend carries point-denominated prices.
	pointsAlias = "xpf"

	// MaxAmount caps a single unit price in minor units.
	MaxAmount int64 = 1_000_000_000_000
)

// ErrAmountOverflow is returned when line or cart arithmetic leaves int64.
var ErrAmountOverflow = errors.New("amount overflows")

// Currency is a parsed denomination. Code comparison is never needed outside
// this file: callers branch on Family.
type Currency struct {
	Family enums.CurrencyFamily
	Code   string
}

// Points returns the canonical points currency.
func Points() Currency {
	return Currency{Family: enums.CurrencyFamilyPoints, Code: PointsCode}
}

// ParseCurrency normalizes a raw currency code. "dust" and "xpf" (any case)
// map to the points family; any other three letter code is fiat.
func ParseCurrency(raw string) (Currency, error) {
	code := strings.ToLower(strings.TrimSpace(raw))
	switch code {
	case "":
		return Currency{}, fmt.Errorf("currency code is required")
	case PointsCode, pointsAlias:
		return Points(), nil
	case MixedCurrencyCode:
		return Currency{}, fmt.Errorf("currency %q is not a denomination", raw)
	}
	if len(code) != 3 {
		return Currency{}, fmt.Errorf("invalid currency code %q", raw)
	}
	for _, r := range code {
		if r < 'a' || r > 'z' {
			return Currency{}, fmt.Errorf("invalid currency code %q", raw)
		}
	}
	return Currency{Family: enums.CurrencyFamilyFiat, Code: code}, nil
}

// MustCurrency is ParseCurrency for trusted literals.
func MustCurrency(raw string) Currency {
	c, err := ParseCurrency(raw)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Currency) IsPoints() bool {
	return c.Family == enums.CurrencyFamilyPoints
}

func (c Currency) IsZero() bool {
	return c.Code == ""
}

func (c Currency) String() string {
	return c.Code
}

// Money is an amount in minor units (cents for fiat, whole points for dust).
type Money struct {
	Amount   int64
	Currency Currency
}

func NewMoney(amount int64, currencyCode string) (Money, error) {
	if amount < 0 {
		return Money{}, fmt.Errorf("amount must not be negative")
	}
	if amount > MaxAmount {
		return Money{}, fmt.Errorf("amount must not exceed %d", MaxAmount)
	}
	c, err := ParseCurrency(currencyCode)
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: amount, Currency: c}, nil
}

// Times multiplies the amount by a line quantity, failing with
// ErrAmountOverflow instead of wrapping.
func (m Money) Times(qty int) (Money, error) {
	amount, err := MulAmount(m.Amount, qty)
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: amount, Currency: m.Currency}, nil
}

// MulAmount multiplies two non-negative operands.
func MulAmount(amount int64, qty int) (int64, error) {
	if amount < 0 || qty < 0 {
		return 0, fmt.Errorf("negative operand %d x %d", amount, qty)
	}
	if qty != 0 && amount > math.MaxInt64/int64(qty) {
		return 0, ErrAmountOverflow
	}
	return amount * int64(qty), nil
}

// AddAmount adds two non-negative amounts.
func AddAmount(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, fmt.Errorf("negative operand %d + %d", a, b)
	}
	if a > math.MaxInt64-b {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}

type moneyJSON struct {
	Amount       int64  `json:"amount"`
	CurrencyCode string `json:"currency_code"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.Amount, CurrencyCode: m.Currency.Code})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewMoney(raw.Amount, raw.CurrencyCode)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
