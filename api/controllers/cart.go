package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	cartActionAdd    = "add"
	cartActionUpdate = "update"
	cartActionRemove = "remove"

	maxTitleLength = 255
)

type cartStore interface {
	GetOrCreate(ctx context.Context, cartID string) (*cart.Cart, error)
	AddItem(ctx context.Context, cartID string, input cart.AddItemInput) (*cart.Cart, error)
	UpdateQuantity(ctx context.Context, cartID, itemID string, qty int) (*cart.Cart, error)
	RemoveItem(ctx context.Context, cartID, itemID string) (*cart.Cart, error)
}

// variantPricer resolves the authoritative title and price of a variant.
type variantPricer interface {
	ResolveVariant(ctx context.Context, productID, variantID string) (*catalog.ResolvedVariant, error)
}

type cartMutationRequest struct {
	Action    string       `json:"action" validate:"required,oneof=add update remove"`
	ProductID string       `json:"product_id,omitempty"`
	VariantID string       `json:"variant_id,omitempty"`
	Title     string       `json:"title,omitempty"`
	Price     *types.Money `json:"price,omitempty"`
	Quantity  *int         `json:"quantity,omitempty"`
	ItemID    string       `json:"item_id,omitempty"`
}

// cartResponse mirrors cart.Cart but allows a null id for visitors without
// a cart cookie.
type cartResponse struct {
	ID           *string     `json:"id"`
	Items        []cart.Item `json:"items"`
	Total        int64       `json:"total"`
	CurrencyCode string      `json:"currency_code"`
	Currencies   []string    `json:"currencies,omitempty"`
}

// CartFetch returns the visitor's cart, or an empty cart without an id when
// no cart cookie is present. A cookie naming a checked-out cart is replaced.
func CartFetch(svc cartStore, cfg config.CartConfig, secureCookie bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		cartID := cartIDFromCookie(r, cfg)
		if cartID == "" {
			responses.WriteSuccess(w, cartResponse{Items: []cart.Item{}, CurrencyCode: types.DefaultCurrencyCode})
			return
		}

		c, err := svc.GetOrCreate(r.Context(), cartID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if c.ID != cartID {
			setCartCookie(w, cfg, c.ID, secureCookie)
		}
		responses.WriteSuccess(w, newCartResponse(c))
	}
}

// CartMutate applies an add, update or remove action and refreshes the cart
// cookie. Added lines take their title and price from prices; a nil pricer
// falls back to the request body.
func CartMutate(svc cartStore, prices variantPricer, cfg config.CartConfig, secureCookie bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var payload cartMutationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := payload.validate(prices == nil); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		current, err := svc.GetOrCreate(ctx, cartIDFromCookie(r, cfg))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithCartID(ctx, current.ID)
			ctx = logg.WithField(ctx, "cart_action", payload.Action)
		}

		var updated *cart.Cart
		switch payload.Action {
		case cartActionAdd:
			qty := 1
			if payload.Quantity != nil {
				qty = *payload.Quantity
			}
			var input cart.AddItemInput
			input, err = payload.addInput(ctx, prices, qty)
			if err == nil {
				updated, err = svc.AddItem(ctx, current.ID, input)
			}
		case cartActionUpdate:
			updated, err = svc.UpdateQuantity(ctx, current.ID, strings.TrimSpace(payload.ItemID), *payload.Quantity)
		case cartActionRemove:
			updated, err = svc.RemoveItem(ctx, current.ID, strings.TrimSpace(payload.ItemID))
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		setCartCookie(w, cfg, updated.ID, secureCookie)
		responses.WriteSuccess(w, newCartResponse(updated))
	}
}

func (p cartMutationRequest) addInput(ctx context.Context, prices variantPricer, qty int) (cart.AddItemInput, error) {
	input := cart.AddItemInput{
		ProductID: strings.TrimSpace(p.ProductID),
		VariantID: strings.TrimSpace(p.VariantID),
		Quantity:  qty,
	}
	if prices == nil {
		input.Title = validators.CleanText(p.Title, maxTitleLength)
		input.Price = *p.Price
		return input, nil
	}
	resolved, err := prices.ResolveVariant(ctx, input.ProductID, input.VariantID)
	if err != nil {
		return input, err
	}
	input.ProductID = resolved.ProductID
	input.VariantID = resolved.VariantID
	input.Title = validators.CleanText(resolved.Title, maxTitleLength)
	input.Price = resolved.Price
	return input, nil
}

func (p cartMutationRequest) validate(clientPricing bool) error {
	missing := []string{}
	switch p.Action {
	case cartActionAdd:
		if strings.TrimSpace(p.ProductID) == "" {
			missing = append(missing, "product_id")
		}
		if strings.TrimSpace(p.VariantID) == "" {
			missing = append(missing, "variant_id")
		}
		if !clientPricing {
			break
		}
		if strings.TrimSpace(p.Title) == "" {
			missing = append(missing, "title")
		}
		if p.Price == nil {
			missing = append(missing, "price")
		} else if p.Price.Amount <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid price amount").
				WithDetails(map[string]any{"price": p.Price})
		}
	case cartActionUpdate:
		if strings.TrimSpace(p.ItemID) == "" {
			missing = append(missing, "item_id")
		}
		if p.Quantity == nil {
			missing = append(missing, "quantity")
		}
	case cartActionRemove:
		if strings.TrimSpace(p.ItemID) == "" {
			missing = append(missing, "item_id")
		}
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "missing required fields").
			WithDetails(map[string]any{"missing": missing})
	}
	return nil
}

func newCartResponse(c *cart.Cart) cartResponse {
	id := c.ID
	resp := cartResponse{
		ID:           &id,
		Items:        c.Items,
		Total:        c.Total,
		CurrencyCode: c.CurrencyCode,
	}
	if resp.Items == nil {
		resp.Items = []cart.Item{}
	}
	if c.CurrencyCode == types.MixedCurrencyCode {
		resp.Currencies = c.Currencies()
	}
	return resp
}

func cartIDFromCookie(r *http.Request, cfg config.CartConfig) string {
	cookie, err := r.Cookie(cfg.CookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

func setCartCookie(w http.ResponseWriter, cfg config.CartConfig, cartID string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    cartID,
		Path:     "/",
		MaxAge:   int(cfg.CookieMaxAge / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func expireCartCookie(w http.ResponseWriter, cfg config.CartConfig, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
