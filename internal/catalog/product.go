package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	tagPointsOnly = "dust-only"
	tagFiat       = "fiat"
)

// Product is the storefront view of a catalog product. Prices are resolved
// once here; PointsOnly products always carry points-denominated variants.
type Product struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Handle      string    `json:"handle"`
	Status      string    `json:"status,omitempty"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	Images      []string  `json:"images"`
	Tags        []string  `json:"tags"`
	PointsOnly  bool      `json:"points_only"`
	Variants    []Variant `json:"variants"`
}

type Variant struct {
	ID                string      `json:"id"`
	Title             string      `json:"title"`
	SKU               string      `json:"sku,omitempty"`
	Price             types.Money `json:"price"`
	InventoryQuantity int         `json:"inventory_quantity"`
}

type medusaProduct struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description *string         `json:"description"`
	Handle      string          `json:"handle"`
	Status      string          `json:"status"`
	Thumbnail   *string         `json:"thumbnail"`
	Images      []medusaImage   `json:"images"`
	Tags        []medusaTag     `json:"tags"`
	Metadata    map[string]any  `json:"metadata"`
	Variants    []medusaVariant `json:"variants"`
}

type medusaImage struct {
	URL string `json:"url"`
}

// medusaTag accepts both {"value": "..."} objects and bare strings.
type medusaTag struct {
	Value string
}

func (t *medusaTag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &t.Value)
	}
	var obj struct {
		Value string `json:"value"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	t.Value = obj.Value
	if t.Value == "" {
		t.Value = obj.Name
	}
	return nil
}

type medusaVariant struct {
	ID                string           `json:"id"`
	Title             string           `json:"title"`
	SKU               *string          `json:"sku"`
	InventoryQuantity *int             `json:"inventory_quantity"`
	CalculatedPrice   *calculatedPrice `json:"calculated_price"`
	Prices            []medusaPrice    `json:"prices"`
}

type medusaPrice struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currency_code"`
}

// calculatedPrice is region-aware and expressed in full currency units. The
// store API returns either an object or a bare number.
type calculatedPrice struct {
	CalculatedAmount *decimal.Decimal `json:"calculated_amount"`
	OriginalAmount   *decimal.Decimal `json:"original_amount"`
	CurrencyCode     string           `json:"currency_code"`
}

func (p *calculatedPrice) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '{' {
		var amount decimal.Decimal
		if err := amount.UnmarshalJSON(data); err != nil {
			return err
		}
		p.CalculatedAmount = &amount
		return nil
	}
	type plain calculatedPrice
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*p = calculatedPrice(obj)
	return nil
}

func (p *calculatedPrice) amount() (decimal.Decimal, bool) {
	if p == nil {
		return decimal.Zero, false
	}
	if p.CalculatedAmount != nil {
		return *p.CalculatedAmount, true
	}
	if p.OriginalAmount != nil {
		return *p.OriginalAmount, true
	}
	return decimal.Zero, false
}

// normalizeProduct resolves prices and the points-only flag. regionCurrency
// fills in variants whose price omits a currency.
func normalizeProduct(raw medusaProduct, regionCurrency string) (Product, error) {
	product := Product{
		ID:     raw.ID,
		Title:  raw.Title,
		Handle: raw.Handle,
		Status: raw.Status,
		Images: []string{},
		Tags:   []string{},
	}
	if raw.Description != nil {
		product.Description = *raw.Description
	}
	if raw.Thumbnail != nil {
		product.Thumbnail = *raw.Thumbnail
	}
	for _, img := range raw.Images {
		if img.URL != "" {
			product.Images = append(product.Images, img.URL)
		}
	}
	for _, tag := range raw.Tags {
		if v := strings.TrimSpace(tag.Value); v != "" {
			product.Tags = append(product.Tags, v)
		}
	}

	product.PointsOnly = truthy(raw.Metadata["dust_only"]) || hasTag(product.Tags, tagPointsOnly)
	pointsPrice, hasPointsPrice, err := pointsPriceFrom(raw.Metadata)
	if err != nil {
		return Product{}, fmt.Errorf("product %s: %w", raw.ID, err)
	}

	for _, rv := range raw.Variants {
		units, currency, err := variantPrice(rv, regionCurrency)
		if err != nil {
			return Product{}, fmt.Errorf("product %s variant %s: %w", raw.ID, rv.ID, err)
		}
		price := toMoney(units, currency)
		if product.PointsOnly {
			if hasPointsPrice {
				price = types.Money{Amount: pointsPrice, Currency: types.Points()}
			} else if !currency.IsPoints() {
				price = types.Money{Amount: units.Round(0).IntPart(), Currency: types.Points()}
			}
		}
		if price.Amount > types.MaxAmount {
			return Product{}, fmt.Errorf("product %s variant %s: price %d out of range", raw.ID, rv.ID, price.Amount)
		}
		v := Variant{
			ID:    rv.ID,
			Title: rv.Title,
			Price: price,
		}
		if v.Title == "" {
			v.Title = raw.Title
		}
		if rv.SKU != nil {
			v.SKU = *rv.SKU
		}
		if rv.InventoryQuantity != nil {
			v.InventoryQuantity = *rv.InventoryQuantity
		}
		product.Variants = append(product.Variants, v)
	}
	if product.Variants == nil {
		product.Variants = []Variant{}
	}

	if len(product.Tags) == 0 && len(product.Variants) > 0 {
		if product.Variants[0].Price.Currency.IsPoints() {
			product.Tags = []string{tagPointsOnly}
			product.PointsOnly = true
		} else {
			product.Tags = []string{tagFiat}
		}
	}
	return product, nil
}

// variantPrice returns the price in full units. calculated_price wins over
// the raw prices list, whose amounts are already minor units.
func variantPrice(v medusaVariant, regionCurrency string) (decimal.Decimal, types.Currency, error) {
	if amount, ok := v.CalculatedPrice.amount(); ok {
		code := v.CalculatedPrice.CurrencyCode
		if code == "" {
			code = regionCurrency
		}
		currency, err := types.ParseCurrency(code)
		if err != nil {
			return decimal.Zero, types.Currency{}, err
		}
		return amount, currency, nil
	}
	if len(v.Prices) > 0 {
		p := v.Prices[0]
		code := p.CurrencyCode
		if code == "" {
			code = regionCurrency
		}
		currency, err := types.ParseCurrency(code)
		if err != nil {
			return decimal.Zero, types.Currency{}, err
		}
		if currency.IsPoints() {
			return p.Amount, currency, nil
		}
		return p.Amount.Shift(-2), currency, nil
	}
	currency, err := types.ParseCurrency(regionCurrency)
	if err != nil {
		return decimal.Zero, types.Currency{}, err
	}
	return decimal.Zero, currency, nil
}

// toMoney converts full units to minor units; points have no minor unit.
func toMoney(units decimal.Decimal, currency types.Currency) types.Money {
	if units.IsNegative() {
		units = decimal.Zero
	}
	if currency.IsPoints() {
		return types.Money{Amount: units.Round(0).IntPart(), Currency: currency}
	}
	return types.Money{Amount: units.Shift(2).Round(0).IntPart(), Currency: currency}
}

func pointsPriceFrom(metadata map[string]any) (int64, bool, error) {
	raw, ok := metadata["dust_price"]
	if !ok || raw == nil {
		return 0, false, nil
	}
	var (
		d   decimal.Decimal
		err error
	)
	switch v := raw.(type) {
	case float64:
		d = decimal.NewFromFloat(v)
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, false, nil
		}
		d, err = decimal.NewFromString(strings.TrimSpace(v))
	case json.Number:
		d, err = decimal.NewFromString(v.String())
	default:
		err = fmt.Errorf("unsupported dust_price %v", raw)
	}
	if err != nil {
		return 0, false, fmt.Errorf("invalid dust_price: %w", err)
	}
	if !d.IsPositive() {
		return 0, false, fmt.Errorf("dust_price must be positive")
	}
	return d.Round(0).IntPart(), true, nil
}

// truthy accepts true, "true", "1" and 1.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		s := strings.TrimSpace(strings.ToLower(t))
		return s == "true" || s == "1"
	case float64:
		return t == 1
	case json.Number:
		return t.String() == "1"
	default:
		return false
	}
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, want) {
			return true
		}
	}
	return false
}
