package enums

import "slices"

// CurrencyFamily splits denominations into real money and the in-app points
// currency. A cart never mixes families.
type CurrencyFamily string

const (
	CurrencyFamilyFiat   CurrencyFamily = "fiat"
	CurrencyFamilyPoints CurrencyFamily = "points"
)

var currencyFamilies = []CurrencyFamily{CurrencyFamilyFiat, CurrencyFamilyPoints}

func (c CurrencyFamily) String() string { return string(c) }

func (c CurrencyFamily) IsValid() bool { return slices.Contains(currencyFamilies, c) }
