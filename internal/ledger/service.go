package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	pointsTxPrefix = "dust_tx_"
	creditTxPrefix = "credit_tx_"
	entryIDPrefix  = "ple_"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the only mutator of point balances. Debits are reachable only
// through Settle, which pairs each debit with a transaction id and an audit
// entry.
type Service interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
	Credit(ctx context.Context, userID string, amount int64) (int64, error)
	Provision(ctx context.Context, userID string, opening int64) (bool, error)
	Settle(ctx context.Context, tx *gorm.DB, userID string, amount int64) (*Settlement, error)
	Refund(ctx context.Context, tx *gorm.DB, userID string, amount int64, transactionID string) (int64, error)
	History(ctx context.Context, userID string, limit int) ([]models.PointLedgerEntry, error)
}

// Settlement is the outcome of a successful points payment.
type Settlement struct {
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Balance       int64  `json:"balance"`
}

type service struct {
	tx   txRunner
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(tx txRunner, repo Repository) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{tx: tx, repo: repo}, nil
}

// GetBalance reports 0 for users without an account.
func (s *service) GetBalance(ctx context.Context, userID string) (int64, error) {
	if err := requireUser(userID); err != nil {
		return 0, err
	}
	row, err := s.repo.FindBalance(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load balance")
	}
	if row == nil {
		return 0, nil
	}
	return row.Balance, nil
}

func (s *service) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	if err := requireUser(userID); err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "credit amount must be positive")
	}

	var balance int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.EnsureAccount(ctx, userID, 0); err != nil {
			return err
		}
		next, err := repo.Increment(ctx, userID, amount)
		if err != nil {
			return err
		}
		balance = next
		return repo.AppendEntry(ctx, newEntry(userID, enums.LedgerEntryCredit, amount, next, creditTxPrefix+uuid.NewString()))
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "credit points")
	}
	return balance, nil
}

// Provision opens an account with a starting balance when none exists yet.
// Existing balances are never overwritten.
func (s *service) Provision(ctx context.Context, userID string, opening int64) (bool, error) {
	if err := requireUser(userID); err != nil {
		return false, err
	}
	if opening < 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "opening balance must not be negative")
	}
	var created bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.EnsureAccount(ctx, userID, opening)
		if err != nil {
			return err
		}
		created = ok
		if !ok || opening == 0 {
			return nil
		}
		return repo.AppendEntry(ctx, newEntry(userID, enums.LedgerEntryCredit, opening, opening, creditTxPrefix+uuid.NewString()))
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "provision points account")
	}
	return created, nil
}

// Settle debits amount inside the caller's transaction. It fails with
// INSUFFICIENT_BALANCE, leaving the balance unchanged, when funds are short.
func (s *service) Settle(ctx context.Context, tx *gorm.DB, userID string, amount int64) (*Settlement, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement amount must be positive")
	}
	repo := s.repo.WithTx(tx)
	balance, err := s.debit(ctx, repo, userID, amount)
	if err != nil {
		return nil, err
	}
	txID := pointsTxPrefix + uuid.NewString()
	if err := repo.AppendEntry(ctx, newEntry(userID, enums.LedgerEntryDebit, amount, balance, txID)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record settlement")
	}
	return &Settlement{TransactionID: txID, Amount: amount, Balance: balance}, nil
}

func (s *service) debit(ctx context.Context, repo Repository, userID string, amount int64) (int64, error) {
	balance, ok, err := repo.DecrementIfSufficient(ctx, userID, amount)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "debit points")
	}
	if ok {
		return balance, nil
	}
	current := int64(0)
	if row, err := repo.FindBalance(ctx, userID); err == nil && row != nil {
		current = row.Balance
	}
	return 0, InsufficientBalance(current, amount)
}

// Refund credits back a settled amount, referencing the original transaction.
func (s *service) Refund(ctx context.Context, tx *gorm.DB, userID string, amount int64, transactionID string) (int64, error) {
	if err := requireUser(userID); err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	repo := s.repo.WithTx(tx)
	if _, err := repo.EnsureAccount(ctx, userID, 0); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "refund points")
	}
	balance, err := repo.Increment(ctx, userID, amount)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "refund points")
	}
	if err := repo.AppendEntry(ctx, newEntry(userID, enums.LedgerEntryRefund, amount, balance, transactionID)); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record refund")
	}
	return balance, nil
}

func (s *service) History(ctx context.Context, userID string, limit int) ([]models.PointLedgerEntry, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListEntries(ctx, userID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list ledger entries")
	}
	return entries, nil
}

// InsufficientBalance builds the error surfaced to shoppers, carrying both the
// current balance and the amount required.
func InsufficientBalance(balance, required int64) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient dust balance").
		WithDetails(map[string]any{"balance": balance, "required": required})
}

func newEntry(userID string, kind enums.LedgerEntryType, amount, balanceAfter int64, txID string) *models.PointLedgerEntry {
	return &models.PointLedgerEntry{
		ID:            entryIDPrefix + uuid.NewString(),
		UserID:        userID,
		Type:          kind,
		Amount:        amount,
		BalanceAfter:  balanceAfter,
		TransactionID: txID,
	}
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return nil
}
