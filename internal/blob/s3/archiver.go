package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nvh2205/poly-ab-sub001/internal/domain"
)

// ArbExecutionArchiveStore provides read access to settled arb executions
// for cold-storage archival.
type ArbExecutionArchiveStore interface {
	// ListBefore returns every execution that completed strictly before the
	// given cutoff time.
	ListBefore(ctx context.Context, before time.Time) ([]domain.ArbExecution, error)
}

// ArchiveImpl implements domain.Archiver by querying the arb execution
// store for settled rows, serializing them to JSONL, and uploading the
// result to S3.
//
// Deletion of the archived rows from Postgres is intentionally NOT
// performed here -- that is a separate, explicit step to be executed after
// the archive has been verified.
type ArchiveImpl struct {
	writer domain.BlobWriter
	arb    ArbExecutionArchiveStore
	audit  domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, arb ArbExecutionArchiveStore, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{writer: writer, arb: arb, audit: audit}
}

// ArchiveArbHistory queries all settled arb executions before the cutoff,
// serializes them to JSONL, and uploads the file to S3 at
// archive/arb_history/YYYY-MM.jsonl. The archival event is recorded in the
// audit log and the count of archived records is returned.
func (a *ArchiveImpl) ArchiveArbHistory(ctx context.Context, before time.Time) (int64, error) {
	execs, err := a.arb.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive arb history query: %w", err)
	}
	if len(execs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(execs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive arb history marshal: %w", err)
	}

	path := archivePath("arb_history", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive arb history upload: %w", err)
	}

	count := int64(len(execs))

	if err := a.audit.Log(ctx, "archive.arb_history", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive arb history audit log: %w", err)
	}

	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/arb_history/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
