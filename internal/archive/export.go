package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dvloznov/budgetctl/internal/history"
	"github.com/dvloznov/budgetctl/internal/logger"
)

// ObjectName returns the default object name of an export taken at t.
func ObjectName(budgetID string, t time.Time) string {
	return fmt.Sprintf("budgetctl/%s/history-%s.jsonl", budgetID, t.UTC().Format("20060102T150405Z"))
}

// ExportHistory uploads actions as JSON Lines to bucket/object and returns the
// resulting gs:// URI.
func ExportHistory(ctx context.Context, up Uploader, actions []history.Action, bucket, object string) (string, error) {
	log := logger.FromContext(ctx)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, a := range actions {
		if err := enc.Encode(a); err != nil {
			return "", fmt.Errorf("ExportHistory: encoding action %s: %w", a.ID, err)
		}
	}

	if err := up.Upload(ctx, bucket, object, &buf); err != nil {
		return "", fmt.Errorf("ExportHistory: uploading: %w", err)
	}

	uri := URI(bucket, object)
	log.Info().Str("uri", uri).Int("actions", len(actions)).Msg("Exported history")
	return uri, nil
}

// ImportHistory downloads an export written by ExportHistory. Every entry is
// validated while decoding.
func ImportHistory(ctx context.Context, up Uploader, uri string) ([]history.Action, error) {
	data, err := up.Fetch(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("ImportHistory: %w", err)
	}

	var actions []history.Action
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var a history.Action
		if err := json.Unmarshal(sc.Bytes(), &a); err != nil {
			return nil, fmt.Errorf("ImportHistory: line %d: %w", line, err)
		}
		actions = append(actions, a)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ImportHistory: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("uri", uri).Int("actions", len(actions)).Msg("Imported history")
	return actions, nil
}
