package cart

import (
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Cart is the API view of a cart. Total and CurrencyCode are derived from the
// lines every time the cart is loaded.
type Cart struct {
	ID           string    `json:"id"`
	Items        []Item    `json:"items"`
	Total        int64     `json:"total"`
	CurrencyCode string    `json:"currency_code"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Item struct {
	ID        string      `json:"id"`
	ProductID string      `json:"product_id"`
	VariantID string      `json:"variant_id"`
	Title     string      `json:"title"`
	Quantity  int         `json:"quantity"`
	Price     types.Money `json:"price"`
}

// IsPoints reports whether every line is priced in points.
func (c Cart) IsPoints() bool {
	if len(c.Items) == 0 {
		return false
	}
	for _, item := range c.Items {
		if !item.Price.Currency.IsPoints() {
			return false
		}
	}
	return true
}

func fromModel(record *models.Cart) (*Cart, error) {
	out := &Cart{
		ID:        record.ID,
		Items:     make([]Item, 0, len(record.Items)),
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
	for _, item := range record.Items {
		out.Items = append(out.Items, Item{
			ID:        item.ID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Title:     item.Title,
			Quantity:  item.Quantity,
			Price:     types.Money{Amount: item.UnitAmount, Currency: currencyOf(item.CurrencyCode)},
		})
	}
	if err := out.recompute(); err != nil {
		return nil, fmt.Errorf("cart %s: %w", record.ID, err)
	}
	return out, nil
}

// recompute derives the total and the shared currency code: the default code
// when empty, the single code when homogeneous, mixed otherwise.
func (c *Cart) recompute() error {
	var total int64
	for _, item := range c.Items {
		line, err := item.Price.Times(item.Quantity)
		if err != nil {
			return err
		}
		if total, err = types.AddAmount(total, line.Amount); err != nil {
			return err
		}
	}
	c.Total = total

	codes := c.Currencies()
	switch len(codes) {
	case 0:
		c.CurrencyCode = types.DefaultCurrencyCode
	case 1:
		c.CurrencyCode = codes[0]
	default:
		c.CurrencyCode = types.MixedCurrencyCode
	}
	return nil
}

// totalOf sums stored lines the same way recompute does.
func totalOf(items []models.CartItem) (int64, error) {
	var total int64
	for _, item := range items {
		line, err := types.MulAmount(item.UnitAmount, item.Quantity)
		if err != nil {
			return 0, err
		}
		if total, err = types.AddAmount(total, line); err != nil {
			return 0, err
		}
	}
	return total, nil
}

func familyOf(item models.CartItem) enums.CurrencyFamily {
	return currencyOf(item.CurrencyCode).Family
}

// currencyOf trusts stored codes; they were parsed on the way in.
func currencyOf(code string) types.Currency {
	c, err := types.ParseCurrency(code)
	if err != nil {
		return types.Currency{Family: enums.CurrencyFamilyFiat, Code: code}
	}
	return c
}
