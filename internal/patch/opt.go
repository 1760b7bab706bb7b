package patch

import (
	"encoding/json"
)

// Opt is one field assignment inside a patch. A zero Opt is absent (the field
// is not touched). A present Opt either sets a value or, when Null is true,
// clears the field.
type Opt[T comparable] struct {
	Present bool
	Null    bool
	Value   T
}

// Set returns a present Opt carrying v.
func Set[T comparable](v T) Opt[T] {
	return Opt[T]{Present: true, Value: v}
}

// Null returns a present Opt that clears the field.
func Null[T comparable]() Opt[T] {
	return Opt[T]{Present: true, Null: true}
}

// OfPtr returns Null for a nil pointer and Set(*p) otherwise.
func OfPtr[T comparable](p *T) Opt[T] {
	if p == nil {
		return Null[T]()
	}
	return Set(*p)
}

// Ptr returns the assigned value as a pointer, nil for a null or absent Opt.
func (o Opt[T]) Ptr() *T {
	if !o.Present || o.Null {
		return nil
	}
	v := o.Value
	return &v
}

// IsZero reports whether the Opt is absent. encoding/json uses it for omitzero.
func (o Opt[T]) IsZero() bool {
	return !o.Present
}

func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.Present || o.Null {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// UnmarshalJSON is only invoked for keys present in the document, so every
// decoded Opt is Present. A JSON null decodes to a null assignment.
func (o *Opt[T]) UnmarshalJSON(b []byte) error {
	var zero T
	o.Present = true
	o.Value = zero
	if string(b) == "null" {
		o.Null = true
		return nil
	}
	o.Null = false
	return json.Unmarshal(b, &o.Value)
}
