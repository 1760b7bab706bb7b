package patch

import (
	"encoding/json"
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/budgetctl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTx() domain.Transaction {
	return domain.Transaction{
		ID:        "tx-1",
		AccountID: "acc-1",
		Date:      civil.Date{Year: 2025, Month: 6, Day: 1},
		Amount:    -12500,
		PayeeID:   domain.String("payee-1"),
		Memo:      nil,
		Cleared:   domain.Uncleared,
		Approved:  false,
	}
}

func TestDiff(t *testing.T) {
	tx := sampleTx()

	tests := []struct {
		name  string
		patch Fields
		want  []string
	}{
		{"same value is a no-op", Fields{Approved: Set(false)}, nil},
		{"null equals absent memo", Fields{Memo: Null[string]()}, nil},
		{"null flag equals absent flag", Fields{FlagColor: Null[domain.FlagColor]()}, nil},
		{"changed field", Fields{Approved: Set(true)}, []string{"approved"}},
		{"empty string is not null", Fields{Memo: Set("")}, []string{"memo"}},
		{"clearing a set payee", Fields{PayeeID: Null[string]()}, []string{"payee_id"}},
		{
			"only changed fields survive",
			Fields{Approved: Set(true), AccountID: Set("acc-1"), Amount: Set(domain.Milliunits(-12500))},
			[]string{"approved"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(&tx, tt.patch)
			assert.Equal(t, tt.want, got.Names())
			assert.Equal(t, tt.want == nil, got.IsEmpty())
		})
	}
}

func TestInverseRestoresPreMutationValues(t *testing.T) {
	before := sampleTx()
	forward := Fields{
		Approved:   Set(true),
		Memo:       Set("rent"),
		PayeeID:    Null[string](),
		FlagColor:  Set(domain.FlagBlue),
		CategoryID: Set("cat-9"),
		Date:       Set(civil.Date{Year: 2025, Month: 6, Day: 2}),
	}

	inverse := Inverse(&before, forward)
	after := Apply(before, forward)
	restored := Apply(after, inverse)

	assert.Equal(t, before, restored)
	assert.Equal(t, forward.Names(), inverse.Names())
	assert.True(t, inverse.Memo.Null)
	assert.Equal(t, "payee-1", inverse.PayeeID.Value)
}

func TestMovesAccount(t *testing.T) {
	tx := sampleTx()
	assert.False(t, Fields{}.MovesAccount(&tx))
	assert.False(t, Fields{AccountID: Set("acc-1")}.MovesAccount(&tx))
	assert.True(t, Fields{AccountID: Set("acc-2")}.MovesAccount(&tx))
}

func TestFieldsValidate(t *testing.T) {
	assert.NoError(t, Fields{Cleared: Set(domain.Reconciled)}.Validate())
	assert.NoError(t, Fields{FlagColor: Null[domain.FlagColor]()}.Validate())
	assert.Error(t, Fields{Cleared: Set(domain.ClearedStatus("maybe"))}.Validate())
	assert.Error(t, Fields{FlagColor: Set(domain.FlagColor("pink"))}.Validate())
	assert.Error(t, Fields{Approved: Null[bool]()}.Validate())
	assert.Error(t, Fields{AccountID: Set("")}.Validate())
}

func TestEntryJSONRoundTrip(t *testing.T) {
	entries := []Entry{
		Update("tx-1", Fields{Approved: Set(true), Memo: Null[string]()}),
		Delete("tx-2"),
		Restore(sampleTx()),
	}

	b, err := json.Marshal(entries)
	require.NoError(t, err)

	var got []Entry
	require.NoError(t, json.Unmarshal(b, &got))
	require.Len(t, got, 3)

	fp, ok := got[0].Patch.(FieldPatch)
	require.True(t, ok)
	assert.Equal(t, []string{"memo", "approved"}, fp.Fields.Names())
	assert.True(t, fp.Fields.Memo.Null)

	_, ok = got[1].Patch.(DeleteMarker)
	assert.True(t, ok)

	rm, ok := got[2].Patch.(RestoreMarker)
	require.True(t, ok)
	assert.Equal(t, sampleTx(), rm.Snapshot)
}

func TestEntryUnmarshalRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"unknown kind", `{"kind":"merge","id":"tx-1"}`},
		{"missing id", `{"kind":"delete"}`},
		{"update without fields", `{"kind":"update","id":"tx-1"}`},
		{"update with empty fields", `{"kind":"update","id":"tx-1","fields":{}}`},
		{"unknown field", `{"kind":"update","id":"tx-1","fields":{"colour":"red"}}`},
		{"delete with payload", `{"kind":"delete","id":"tx-1","fields":{"approved":true}}`},
		{"restore without snapshot", `{"kind":"restore","id":"tx-1"}`},
		{"restore snapshot without account", `{"kind":"restore","id":"tx-1","snapshot":{"id":"tx-1","date":"2025-01-01"}}`},
		{"null on required field", `{"kind":"update","id":"tx-1","fields":{"approved":null}}`},
		{"unknown top-level key", `{"kind":"delete","id":"tx-1","extra":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e Entry
			err := json.Unmarshal([]byte(tt.json), &e)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrStructural), "got %v", err)
		})
	}
}

type bogusPatch struct{}

func (bogusPatch) Kind() Kind { return "bogus" }
func (bogusPatch) sealed()    {}

func TestValidateEntries(t *testing.T) {
	err := ValidateEntries([]Entry{Delete("tx-1"), {ID: "tx-2"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStructural)
	assert.Contains(t, err.Error(), "entry 1")

	err = ValidateEntries([]Entry{{ID: "tx-3", Patch: bogusPatch{}}})
	assert.ErrorIs(t, err, ErrStructural)

	assert.NoError(t, ValidateEntries([]Entry{Delete("tx-1"), Restore(sampleTx())}))
}

func TestFindUpdate(t *testing.T) {
	entries := []Entry{Delete("tx-1"), Update("tx-1", Fields{Approved: Set(true)}), Update("tx-2", Fields{Memo: Set("x")})}
	e, ok := FindUpdate(entries, "tx-1")
	require.True(t, ok)
	assert.Equal(t, KindUpdate, e.Patch.Kind())

	_, ok = FindUpdate(entries, "tx-9")
	assert.False(t, ok)
}
