// Package patch defines the unit of mutation and inversion applied to ledger
// transactions: a field patch, a delete marker, or a restore marker carrying a
// full snapshot. Entries are what the history journal records and what the
// revert engine replays.
package patch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dvloznov/budgetctl/internal/domain"
)

// Kind is the discriminant of a recorded patch entry.
type Kind string

const (
	KindUpdate  Kind = "update"
	KindDelete  Kind = "delete"
	KindRestore Kind = "restore"
)

// ErrStructural marks a recorded entry that does not match any patch shape.
var ErrStructural = errors.New("malformed patch entry")

// Patch is a closed sum type: FieldPatch, DeleteMarker or RestoreMarker.
type Patch interface {
	Kind() Kind
	sealed()
}

// FieldPatch assigns a set of fields.
type FieldPatch struct {
	Fields Fields
}

// DeleteMarker deletes the transaction.
type DeleteMarker struct{}

// RestoreMarker recreates a deleted transaction from its snapshot.
type RestoreMarker struct {
	Snapshot domain.Transaction
}

func (FieldPatch) Kind() Kind    { return KindUpdate }
func (DeleteMarker) Kind() Kind  { return KindDelete }
func (RestoreMarker) Kind() Kind { return KindRestore }

func (FieldPatch) sealed()    {}
func (DeleteMarker) sealed()  {}
func (RestoreMarker) sealed() {}

// Entry is a patch addressed to one transaction.
type Entry struct {
	ID    string
	Patch Patch
}

// Update builds a field patch entry.
func Update(id string, f Fields) Entry {
	return Entry{ID: id, Patch: FieldPatch{Fields: f}}
}

// Delete builds a delete marker entry.
func Delete(id string) Entry {
	return Entry{ID: id, Patch: DeleteMarker{}}
}

// Restore builds a restore marker entry for the snapshot's transaction.
func Restore(snapshot domain.Transaction) Entry {
	return Entry{ID: snapshot.ID, Patch: RestoreMarker{Snapshot: snapshot.Clone()}}
}

// wireEntry is the journal representation of an Entry.
type wireEntry struct {
	Kind     Kind                `json:"kind" validate:"required,oneof=update delete restore"`
	ID       string              `json:"id" validate:"required"`
	Fields   *Fields             `json:"fields,omitempty"`
	Snapshot *domain.Transaction `json:"snapshot,omitempty"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	w := wireEntry{ID: e.ID}
	switch p := e.Patch.(type) {
	case FieldPatch:
		w.Kind = KindUpdate
		f := p.Fields
		w.Fields = &f
	case DeleteMarker:
		w.Kind = KindDelete
	case RestoreMarker:
		w.Kind = KindRestore
		s := p.Snapshot
		w.Snapshot = &s
	default:
		return nil, fmt.Errorf("%w: entry %s has no patch", ErrStructural, e.ID)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes and validates one recorded entry. Unknown keys,
// unknown kinds and payloads that do not belong to the kind are rejected.
func (e *Entry) UnmarshalJSON(b []byte) error {
	var w wireEntry
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return fmt.Errorf("%w: %v", ErrStructural, err)
	}
	if err := validate.Struct(w); err != nil {
		return fmt.Errorf("%w: %v", ErrStructural, err)
	}

	var out Entry
	out.ID = w.ID
	switch w.Kind {
	case KindUpdate:
		if w.Fields == nil || w.Snapshot != nil {
			return fmt.Errorf("%w: update entry %s must carry fields only", ErrStructural, w.ID)
		}
		out.Patch = FieldPatch{Fields: *w.Fields}
	case KindDelete:
		if w.Fields != nil || w.Snapshot != nil {
			return fmt.Errorf("%w: delete entry %s must not carry a payload", ErrStructural, w.ID)
		}
		out.Patch = DeleteMarker{}
	case KindRestore:
		if w.Snapshot == nil || w.Fields != nil {
			return fmt.Errorf("%w: restore entry %s must carry a snapshot only", ErrStructural, w.ID)
		}
		out.Patch = RestoreMarker{Snapshot: *w.Snapshot}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrStructural, w.Kind)
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*e = out
	return nil
}
