package patch

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// snapshotRules is what a restore snapshot must carry to be recreated.
type snapshotRules struct {
	ID        string `validate:"required"`
	AccountID string `validate:"required"`
	Cleared   string `validate:"omitempty,oneof=cleared uncleared reconciled"`
}

// Validate checks that e is one of the known patch shapes with a well-formed
// payload.
func (e Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: entry without id", ErrStructural)
	}
	switch p := e.Patch.(type) {
	case FieldPatch:
		if p.Fields.IsEmpty() {
			return fmt.Errorf("%w: update entry %s has no fields", ErrStructural, e.ID)
		}
		if err := p.Fields.Validate(); err != nil {
			return fmt.Errorf("%w: update entry %s: %v", ErrStructural, e.ID, err)
		}
	case DeleteMarker:
	case RestoreMarker:
		s := p.Snapshot
		rules := snapshotRules{ID: s.ID, AccountID: s.AccountID, Cleared: string(s.Cleared)}
		if err := validate.Struct(rules); err != nil {
			return fmt.Errorf("%w: restore entry %s: %v", ErrStructural, e.ID, err)
		}
		if s.ID != e.ID {
			return fmt.Errorf("%w: restore entry %s carries snapshot of %s", ErrStructural, e.ID, s.ID)
		}
		if !s.Date.IsValid() {
			return fmt.Errorf("%w: restore entry %s has invalid date", ErrStructural, e.ID)
		}
	default:
		return fmt.Errorf("%w: entry %s has unsupported patch %T", ErrStructural, e.ID, e.Patch)
	}
	return nil
}

// ValidateEntries validates every entry and reports the first failure with its
// position.
func ValidateEntries(entries []Entry) error {
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return nil
}

// FindUpdate returns the first field patch addressed to id.
func FindUpdate(entries []Entry, id string) (Entry, bool) {
	for _, e := range entries {
		if e.ID != id {
			continue
		}
		if _, ok := e.Patch.(FieldPatch); ok {
			return e, true
		}
	}
	return Entry{}, false
}
