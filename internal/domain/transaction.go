package domain

import (
	"cloud.google.com/go/civil"
)

// ClearedStatus is the reconciliation state of a transaction.
type ClearedStatus string

const (
	Cleared    ClearedStatus = "cleared"
	Uncleared  ClearedStatus = "uncleared"
	Reconciled ClearedStatus = "reconciled"
)

// FlagColor is the colored flag a user can attach to a transaction.
type FlagColor string

const (
	FlagRed    FlagColor = "red"
	FlagOrange FlagColor = "orange"
	FlagYellow FlagColor = "yellow"
	FlagGreen  FlagColor = "green"
	FlagBlue   FlagColor = "blue"
	FlagPurple FlagColor = "purple"
)

// Transaction is the remote ledger record. The service owns it; the client only
// keeps transient copies fetched for a single invocation.
type Transaction struct {
	ID                    string           `json:"id"`
	AccountID             string           `json:"account_id"`
	Date                  civil.Date       `json:"date"`
	Amount                Milliunits       `json:"amount"`
	PayeeID               *string          `json:"payee_id"`
	CategoryID            *string          `json:"category_id"`
	Memo                  *string          `json:"memo"`
	Cleared               ClearedStatus    `json:"cleared"`
	Approved              bool             `json:"approved"`
	FlagColor             *FlagColor       `json:"flag_color"`
	TransferAccountID     *string          `json:"transfer_account_id"`
	TransferTransactionID *string          `json:"transfer_transaction_id"`
	ImportID              *string          `json:"import_id"`
	Subtransactions       []SubTransaction `json:"subtransactions"`
	Deleted               bool             `json:"deleted"`
}

// SubTransaction is one line of a split transaction.
type SubTransaction struct {
	ID            string     `json:"id"`
	TransactionID string     `json:"transaction_id"`
	Amount        Milliunits `json:"amount"`
	Memo          *string    `json:"memo"`
	PayeeID       *string    `json:"payee_id"`
	CategoryID    *string    `json:"category_id"`
	Deleted       bool       `json:"deleted"`
}

// IsTransfer reports whether the transaction is one leg of a transfer between
// two accounts.
func (t *Transaction) IsTransfer() bool {
	return t.TransferAccountID != nil || t.TransferTransactionID != nil
}

// IsSplit reports whether the transaction carries subtransactions.
func (t *Transaction) IsSplit() bool {
	return len(t.Subtransactions) > 0
}

// NewTransaction is the creation payload for a transaction. It carries only the
// fields the service accepts on create.
type NewTransaction struct {
	AccountID  string        `json:"account_id"`
	Date       civil.Date    `json:"date"`
	Amount     Milliunits    `json:"amount"`
	PayeeID    *string       `json:"payee_id,omitempty"`
	CategoryID *string       `json:"category_id,omitempty"`
	Memo       *string       `json:"memo,omitempty"`
	Cleared    ClearedStatus `json:"cleared,omitempty"`
	Approved   bool          `json:"approved"`
	FlagColor  *FlagColor    `json:"flag_color,omitempty"`
	ImportID   *string       `json:"import_id,omitempty"`
}

// CreationRequest builds the payload that recreates t from its essential fields.
func (t *Transaction) CreationRequest() NewTransaction {
	return NewTransaction{
		AccountID:  t.AccountID,
		Date:       t.Date,
		Amount:     t.Amount,
		PayeeID:    cloneString(t.PayeeID),
		CategoryID: cloneString(t.CategoryID),
		Memo:       cloneString(t.Memo),
		Cleared:    t.Cleared,
		Approved:   t.Approved,
		FlagColor:  cloneFlag(t.FlagColor),
		ImportID:   cloneString(t.ImportID),
	}
}

// Clone returns a deep copy of t.
func (t Transaction) Clone() Transaction {
	c := t
	c.PayeeID = cloneString(t.PayeeID)
	c.CategoryID = cloneString(t.CategoryID)
	c.Memo = cloneString(t.Memo)
	c.FlagColor = cloneFlag(t.FlagColor)
	c.TransferAccountID = cloneString(t.TransferAccountID)
	c.TransferTransactionID = cloneString(t.TransferTransactionID)
	c.ImportID = cloneString(t.ImportID)
	if t.Subtransactions != nil {
		c.Subtransactions = make([]SubTransaction, len(t.Subtransactions))
		copy(c.Subtransactions, t.Subtransactions)
	}
	return c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneFlag(f *FlagColor) *FlagColor {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// String returns a pointer to s. Convenient for optional fields.
func String(s string) *string { return &s }

// Flag returns a pointer to f.
func Flag(f FlagColor) *FlagColor { return &f }
