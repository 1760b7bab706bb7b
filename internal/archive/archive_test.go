package archive

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/budgetctl/internal/history"
	"github.com/dvloznov/budgetctl/internal/patch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockUploader is a mock implementation of Uploader for testing.
type MockUploader struct {
	UploadFunc func(ctx context.Context, bucket, object string, r io.Reader) error
	FetchFunc  func(ctx context.Context, uri string) ([]byte, error)

	objects map[string][]byte
}

func (m *MockUploader) Upload(ctx context.Context, bucket, object string, r io.Reader) error {
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, bucket, object, r)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[URI(bucket, object)] = data
	return nil
}

func (m *MockUploader) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, uri)
	}
	data, ok := m.objects[uri]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func actions() []history.Action {
	at := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	return []history.Action{
		{
			ID: "a1", Command: "approve", BudgetID: "b1", CreatedAt: at,
			Forward: []patch.Entry{patch.Update("tx-1", patch.Fields{Approved: patch.Set(true)})},
			Inverse: []patch.Entry{patch.Update("tx-1", patch.Fields{Approved: patch.Set(false)})},
		},
		{
			ID: "a2", Command: "delete", BudgetID: "b1", CreatedAt: at.Add(time.Hour),
			Forward:    []patch.Entry{patch.Delete("tx-2")},
			Inverse:    []patch.Entry{},
			RevertedBy: "a3",
		},
	}
}

func TestExportThenImport(t *testing.T) {
	up := &MockUploader{}
	ctx := context.Background()

	uri, err := ExportHistory(ctx, up, actions(), "bucket", "exports/h.jsonl")
	require.NoError(t, err)
	assert.Equal(t, "gs://bucket/exports/h.jsonl", uri)
	assert.Equal(t, 2, strings.Count(string(up.objects[uri]), "\n"))

	got, err := ImportHistory(ctx, up, uri)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a1", got[0].ID)
	assert.Equal(t, actions()[0].Forward, got[0].Forward)
	assert.Equal(t, "a3", got[1].RevertedBy)
}

func TestExportUploadError(t *testing.T) {
	up := &MockUploader{UploadFunc: func(context.Context, string, string, io.Reader) error {
		return errors.New("permission denied")
	}}
	_, err := ExportHistory(context.Background(), up, actions(), "bucket", "h.jsonl")
	assert.ErrorContains(t, err, "permission denied")
}

func TestImportRejectsMalformedEntries(t *testing.T) {
	up := &MockUploader{FetchFunc: func(context.Context, string) ([]byte, error) {
		return []byte(`{"id":"a1","forward":[{"kind":"explode","id":"tx-1"}],"inverse":[]}` + "\n"), nil
	}}
	_, err := ImportHistory(context.Background(), up, "gs://bucket/h.jsonl")
	assert.ErrorIs(t, err, patch.ErrStructural)
	assert.ErrorContains(t, err, "line 1")
}

func TestParseURI(t *testing.T) {
	bucket, object, err := ParseURI("gs://my-bucket/path/to/file.jsonl")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "path/to/file.jsonl", object)

	for _, bad := range []string{"s3://bucket/x", "gs://bucket", "gs:///x", "gs://bucket/"} {
		_, _, err := ParseURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestObjectName(t *testing.T) {
	at := time.Date(2024, 6, 1, 9, 30, 5, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "budgetctl/b1/history-20240601T083005Z.jsonl", ObjectName("b1", at))
}
