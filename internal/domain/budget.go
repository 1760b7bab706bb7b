package domain

// Budget is a top-level ledger owned by the user.
type Budget struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Account belongs to a budget and holds transactions.
type Account struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Type    string     `json:"type"`
	Balance Milliunits `json:"balance"`
	Closed  bool       `json:"closed"`
	Deleted bool       `json:"deleted"`
}

// Category is a budget category a transaction can be assigned to.
type Category struct {
	ID              string `json:"id"`
	CategoryGroupID string `json:"category_group_id"`
	Name            string `json:"name"`
	Hidden          bool   `json:"hidden"`
	Deleted         bool   `json:"deleted"`
}

// Payee is a counterparty of transactions.
type Payee struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	TransferAccountID *string `json:"transfer_account_id"`
	Deleted           bool    `json:"deleted"`
}
