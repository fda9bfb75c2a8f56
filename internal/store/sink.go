package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const StatusCompleted = "COMPLETED"

// Report is the finished output of one mission.
type Report struct {
	ConversationID *int64
	MissionID      int64
	Goal           string
	Content        string
	At             time.Time
}

// Title returns the document title, Report_<conversation>_<YYYYMMDD>.
func (r Report) Title() string {
	conv := "adhoc"
	if r.ConversationID != nil {
		conv = strconv.FormatInt(*r.ConversationID, 10)
	}
	at := r.At
	if at.IsZero() {
		at = time.Now()
	}
	return fmt.Sprintf("Report_%s_%s", conv, at.Format("20060102"))
}

type DocumentSink interface {
	Ingest(ctx context.Context, doc Document) (string, error)
}

type AuditSink interface {
	Record(ctx context.Context, e AuditEntry) error
}

// DualSink writes every report to the document store and the audit log.
// The writes are independent: one failing never skips the other.
type DualSink struct {
	Documents DocumentSink
	Audit     AuditSink
}

func NewDualSink(docs DocumentSink, audit AuditSink) *DualSink {
	return &DualSink{Documents: docs, Audit: audit}
}

func (d *DualSink) Persist(ctx context.Context, r Report) error {
	var errs []error
	if d.Documents != nil {
		_, err := d.Documents.Ingest(ctx, Document{
			Kind:      KindReport,
			Title:     r.Title(),
			Text:      r.Content,
			MissionID: r.MissionID,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("document store: %w", err))
		}
	}
	if d.Audit != nil {
		err := d.Audit.Record(ctx, AuditEntry{
			ConversationID: r.ConversationID,
			MissionID:      r.MissionID,
			Query:          r.Goal,
			Response:       r.Content,
			Status:         StatusCompleted,
			CreatedAt:      r.At,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("audit log: %w", err))
		}
	}
	return errors.Join(errs...)
}
