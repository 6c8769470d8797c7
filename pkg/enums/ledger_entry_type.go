package enums

import "slices"

// LedgerEntryType is the kind of points balance mutation. Credits and refunds
// carry positive amounts, debits negative.
type LedgerEntryType string

const (
	LedgerEntryCredit LedgerEntryType = "credit"
	LedgerEntryDebit  LedgerEntryType = "debit"
	LedgerEntryRefund LedgerEntryType = "refund"
)

var ledgerEntryTypes = []LedgerEntryType{LedgerEntryCredit, LedgerEntryDebit, LedgerEntryRefund}

func (t LedgerEntryType) String() string { return string(t) }

func (t LedgerEntryType) IsValid() bool { return slices.Contains(ledgerEntryTypes, t) }

func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	return parse(ledgerEntryTypes, "ledger entry type", value)
}
