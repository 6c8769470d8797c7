package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type checkoutExecutor interface {
	Execute(ctx context.Context, input checkoutsvc.CheckoutInput) (*checkoutsvc.Result, error)
}

type checkoutRequest struct {
	CartID          string                 `json:"cart_id,omitempty"`
	PaymentMethod   string                 `json:"payment_method,omitempty" validate:"omitempty,oneof=points fiat dust"`
	Customer        *types.Customer        `json:"customer,omitempty"`
	ShippingAddress *types.ShippingAddress `json:"shipping_address,omitempty"`
}

type checkoutResponse struct {
	Order   *orders.Order `json:"order"`
	Balance *int64        `json:"balance,omitempty"`
	Message string        `json:"message"`
}

// Checkout converts the caller's cart into an order. The cart id comes from
// the body or, when absent, the cart cookie.
func Checkout(svc checkoutExecutor, cfg config.CartConfig, secureCookie bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cartID := strings.TrimSpace(payload.CartID)
		if cartID == "" {
			cartID = cartIDFromCookie(r, cfg)
		}
		if cartID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "cart_id is required"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithCartID(ctx, cartID)
		}

		result, err := svc.Execute(ctx, checkoutsvc.CheckoutInput{
			UserID:          userID,
			CartID:          cartID,
			PaymentMethod:   payload.PaymentMethod,
			Customer:        payload.Customer,
			ShippingAddress: payload.ShippingAddress,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if cartIDFromCookie(r, cfg) == cartID {
			expireCartCookie(w, cfg, secureCookie)
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCheckoutResponse(result))
	}
}

func newCheckoutResponse(result *checkoutsvc.Result) checkoutResponse {
	resp := checkoutResponse{Order: result.Order, Balance: result.Balance, Message: "Order placed successfully!"}
	if result.Order != nil && result.Order.PaymentMethod == enums.PaymentMethodPoints {
		resp.Message = "Order placed successfully with dust payment!"
	}
	return resp
}
