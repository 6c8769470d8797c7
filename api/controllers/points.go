package controllers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type pointsAccount interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
	Credit(ctx context.Context, userID string, amount int64) (int64, error)
	History(ctx context.Context, userID string, limit int) ([]models.PointLedgerEntry, error)
}

type balanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

type ledgerEntryResponse struct {
	ID            string                `json:"id"`
	Type          enums.LedgerEntryType `json:"type"`
	Amount        int64                 `json:"amount"`
	BalanceAfter  int64                 `json:"balance_after"`
	TransactionID string                `json:"transaction_id"`
	CreatedAt     time.Time             `json:"created_at"`
}

// PointsBalance returns the caller's dust balance.
func PointsBalance(svc pointsAccount, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "points service unavailable"))
			return
		}
		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		balance, err := svc.GetBalance(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balanceResponse{UserID: userID, Balance: balance})
	}
}

// PointsHistory lists the caller's most recent ledger entries.
func PointsHistory(svc pointsAccount, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "points service unavailable"))
			return
		}
		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		limit, err := validators.QueryInt(r, "limit", defaultHistoryLimit, 1, maxHistoryLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := svc.History(r.Context(), userID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]ledgerEntryResponse, 0, len(entries))
		for _, e := range entries {
			out = append(out, ledgerEntryResponse{
				ID:            e.ID,
				Type:          e.Type,
				Amount:        e.Amount,
				BalanceAfter:  e.BalanceAfter,
				TransactionID: e.TransactionID,
				CreatedAt:     e.CreatedAt,
			})
		}
		responses.WriteSuccess(w, map[string]any{"entries": out, "count": len(out)})
	}
}

// PointsTestCredit credits a fixed amount to the caller. Routed only when the
// test credit feature flag is on.
func PointsTestCredit(svc pointsAccount, amount int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "points service unavailable"))
			return
		}
		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		balance, err := svc.Credit(r.Context(), userID, amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithFields(r.Context(), map[string]any{"credited": amount, "balance": balance}), "points.test_credit")
		}
		responses.WriteSuccess(w, map[string]any{
			"user_id":  userID,
			"credited": amount,
			"balance":  balance,
			"message":  fmt.Sprintf("Credited %d dust", amount),
		})
	}
}
