package patch

import (
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/budgetctl/internal/domain"
)

// Fields is a partial set of assignments to the mutable fields of a
// transaction. Only present fields take part in diffing, inversion and writes.
type Fields struct {
	AccountID  Opt[string]               `json:"account_id,omitzero"`
	Date       Opt[civil.Date]           `json:"date,omitzero"`
	Amount     Opt[domain.Milliunits]    `json:"amount,omitzero"`
	PayeeID    Opt[string]               `json:"payee_id,omitzero"`
	CategoryID Opt[string]               `json:"category_id,omitzero"`
	Memo       Opt[string]               `json:"memo,omitzero"`
	Cleared    Opt[domain.ClearedStatus] `json:"cleared,omitzero"`
	Approved   Opt[bool]                 `json:"approved,omitzero"`
	FlagColor  Opt[domain.FlagColor]     `json:"flag_color,omitzero"`
}

// field binds one Fields member to the matching Transaction member.
type field struct {
	name     string
	nullable bool
	present  func(f *Fields) bool
	isNull   func(f *Fields) bool
	matches  func(f *Fields, tx *domain.Transaction) bool
	capture  func(dst *Fields, tx *domain.Transaction)
	copy     func(dst, src *Fields)
	apply    func(f *Fields, tx *domain.Transaction)
	value    func(f *Fields) any
}

func valueField[T comparable](name string, opt func(*Fields) *Opt[T], cur func(*domain.Transaction) *T) field {
	return field{
		name:    name,
		present: func(f *Fields) bool { return opt(f).Present },
		isNull:  func(f *Fields) bool { return opt(f).Null },
		matches: func(f *Fields, tx *domain.Transaction) bool {
			o := opt(f)
			return !o.Null && o.Value == *cur(tx)
		},
		capture: func(dst *Fields, tx *domain.Transaction) { *opt(dst) = Set(*cur(tx)) },
		copy:    func(dst, src *Fields) { *opt(dst) = *opt(src) },
		apply: func(f *Fields, tx *domain.Transaction) {
			if o := opt(f); !o.Null {
				*cur(tx) = o.Value
			}
		},
		value: func(f *Fields) any { return opt(f).Value },
	}
}

// pointerField handles nullable members. A nil member and a null assignment
// are the same value.
func pointerField[T comparable](name string, opt func(*Fields) *Opt[T], cur func(*domain.Transaction) **T) field {
	return field{
		name:     name,
		nullable: true,
		present:  func(f *Fields) bool { return opt(f).Present },
		isNull:   func(f *Fields) bool { return opt(f).Null },
		matches: func(f *Fields, tx *domain.Transaction) bool {
			o, c := opt(f), *cur(tx)
			if o.Null || c == nil {
				return o.Null && c == nil
			}
			return o.Value == *c
		},
		capture: func(dst *Fields, tx *domain.Transaction) { *opt(dst) = OfPtr(*cur(tx)) },
		copy:    func(dst, src *Fields) { *opt(dst) = *opt(src) },
		apply:   func(f *Fields, tx *domain.Transaction) { *cur(tx) = opt(f).Ptr() },
		value:   func(f *Fields) any { return opt(f).Value },
	}
}

var fieldTable = []field{
	valueField("account_id",
		func(f *Fields) *Opt[string] { return &f.AccountID },
		func(t *domain.Transaction) *string { return &t.AccountID }),
	valueField("date",
		func(f *Fields) *Opt[civil.Date] { return &f.Date },
		func(t *domain.Transaction) *civil.Date { return &t.Date }),
	valueField("amount",
		func(f *Fields) *Opt[domain.Milliunits] { return &f.Amount },
		func(t *domain.Transaction) *domain.Milliunits { return &t.Amount }),
	pointerField("payee_id",
		func(f *Fields) *Opt[string] { return &f.PayeeID },
		func(t *domain.Transaction) **string { return &t.PayeeID }),
	pointerField("category_id",
		func(f *Fields) *Opt[string] { return &f.CategoryID },
		func(t *domain.Transaction) **string { return &t.CategoryID }),
	pointerField("memo",
		func(f *Fields) *Opt[string] { return &f.Memo },
		func(t *domain.Transaction) **string { return &t.Memo }),
	valueField("cleared",
		func(f *Fields) *Opt[domain.ClearedStatus] { return &f.Cleared },
		func(t *domain.Transaction) *domain.ClearedStatus { return &t.Cleared }),
	valueField("approved",
		func(f *Fields) *Opt[bool] { return &f.Approved },
		func(t *domain.Transaction) *bool { return &t.Approved }),
	pointerField("flag_color",
		func(f *Fields) *Opt[domain.FlagColor] { return &f.FlagColor },
		func(t *domain.Transaction) **domain.FlagColor { return &t.FlagColor }),
}

// IsEmpty reports whether no field is present.
func (f Fields) IsEmpty() bool {
	for _, fd := range fieldTable {
		if fd.present(&f) {
			return false
		}
	}
	return true
}

// Names lists the present fields in declaration order.
func (f Fields) Names() []string {
	var names []string
	for _, fd := range fieldTable {
		if fd.present(&f) {
			names = append(names, fd.name)
		}
	}
	return names
}

// MovesAccount reports whether applying f to tx changes its account.
func (f Fields) MovesAccount(tx *domain.Transaction) bool {
	return f.AccountID.Present && !f.AccountID.Null && f.AccountID.Value != tx.AccountID
}

// Diff returns the subset of f that would change tx. An empty result means the
// patch is a no-op for tx.
func Diff(tx *domain.Transaction, f Fields) Fields {
	var out Fields
	for _, fd := range fieldTable {
		if fd.present(&f) && !fd.matches(&f, tx) {
			fd.copy(&out, &f)
		}
	}
	return out
}

// Inverse returns the patch that restores tx's current values for every field
// present in f.
func Inverse(tx *domain.Transaction, f Fields) Fields {
	var out Fields
	for _, fd := range fieldTable {
		if fd.present(&f) {
			fd.capture(&out, tx)
		}
	}
	return out
}

// Apply returns a copy of tx with f applied.
func Apply(tx domain.Transaction, f Fields) domain.Transaction {
	out := tx.Clone()
	for _, fd := range fieldTable {
		if fd.present(&f) {
			fd.apply(&f, &out)
		}
	}
	return out
}

// Validate rejects null assignments to non-nullable fields and values outside
// the enumerations the service accepts.
func (f Fields) Validate() error {
	for _, fd := range fieldTable {
		if !fd.present(&f) {
			continue
		}
		if fd.isNull(&f) {
			if !fd.nullable {
				return fmt.Errorf("field %s cannot be null", fd.name)
			}
			continue
		}
		if tag, ok := enumRules[fd.name]; ok {
			if err := validate.Var(fd.value(&f), tag); err != nil {
				return fmt.Errorf("field %s: invalid value %v", fd.name, fd.value(&f))
			}
		}
	}
	if f.AccountID.Present && !f.AccountID.Null && f.AccountID.Value == "" {
		return fmt.Errorf("field account_id cannot be empty")
	}
	if f.Date.Present && !f.Date.Null && !f.Date.Value.IsValid() {
		return fmt.Errorf("field date: invalid date %s", f.Date.Value)
	}
	return nil
}

var enumRules = map[string]string{
	"cleared":    "oneof=cleared uncleared reconciled",
	"flag_color": "oneof=red orange yellow green blue purple",
}
