package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blevesearch/bleve"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// ErrIndexLocked means another process holds the document index.
var ErrIndexLocked = errors.New("document index is in use by another process")

const (
	KindPage   = "page"
	KindReport = "report"
)

// Document is a unit of recallable text: a fetched page or a mission report.
type Document struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	Text      string    `json:"text"`
	MissionID int64     `json:"mission_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Hit struct {
	Document
	Score float64
}

// DocumentStore is a full-text index over pages and reports. An empty path
// keeps the index in memory.
type DocumentStore struct {
	index bleve.Index
	now   func() time.Time
}

var _ vectorstores.VectorStore = (*DocumentStore)(nil)

// DefaultLockTimeout bounds how long opening an on-disk index waits for
// another process to release it.
const DefaultLockTimeout = time.Second

type documentOptions struct {
	readOnly    bool
	lockTimeout time.Duration
}

type DocumentOption func(*documentOptions)

// ReadOnly opens an existing index without taking the writer lock. A
// missing index opens as an empty in-memory one.
func ReadOnly() DocumentOption {
	return func(o *documentOptions) { o.readOnly = true }
}

func WithLockTimeout(d time.Duration) DocumentOption {
	return func(o *documentOptions) { o.lockTimeout = d }
}

func NewDocumentStore(path string, opts ...DocumentOption) (*DocumentStore, error) {
	o := documentOptions{lockTimeout: DefaultLockTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	index, err := openIndex(path, o)
	if err != nil {
		return nil, fmt.Errorf("failed to open document index %s: %w", path, err)
	}
	return &DocumentStore{index: index, now: time.Now}, nil
}

func openIndex(path string, o documentOptions) (bleve.Index, error) {
	if path == "" {
		return bleve.NewMemOnly(bleve.NewIndexMapping())
	}
	kvConfig := map[string]interface{}{
		"bolt_timeout": o.lockTimeout.String(),
		"read_only":    o.readOnly,
	}
	index, err := bleve.OpenUsing(path, kvConfig)
	switch {
	case err == nil:
		return index, nil
	case !errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
		if strings.Contains(err.Error(), "timeout") {
			return nil, fmt.Errorf("%w: %v", ErrIndexLocked, err)
		}
		return nil, err
	case o.readOnly:
		return bleve.NewMemOnly(bleve.NewIndexMapping())
	}
	return bleve.NewUsing(path, bleve.NewIndexMapping(), bleve.Config.DefaultIndexType, bleve.Config.DefaultKVStore, kvConfig)
}

func (s *DocumentStore) Ingest(ctx context.Context, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now()
	}
	if err := s.index.Index(doc.ID, doc); err != nil {
		return "", fmt.Errorf("failed to index %q: %w", doc.Title, err)
	}
	return doc.ID, nil
}

// IngestPage stores a fetched page excerpt titled "Scrape: <address>".
func (s *DocumentStore) IngestPage(ctx context.Context, address string, missionID int64, text string) error {
	_, err := s.AddDocuments(ctx, []schema.Document{{
		PageContent: text,
		Metadata: map[string]any{
			"kind":       KindPage,
			"title":      "Scrape: " + address,
			"source":     address,
			"mission_id": missionID,
		},
	}})
	return err
}

// Search runs a free-text match query and returns at most k hits.
func (s *DocumentStore) Search(ctx context.Context, q string, k int) ([]Hit, error) {
	if k <= 0 {
		k = 5
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(q), k, 0, false)
	req.Fields = []string{"*"}
	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("document search failed: %w", err)
	}
	out := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		doc := Document{ID: h.ID}
		doc.Kind, _ = h.Fields["kind"].(string)
		doc.Title, _ = h.Fields["title"].(string)
		doc.Source, _ = h.Fields["source"].(string)
		doc.Text, _ = h.Fields["text"].(string)
		if id, ok := h.Fields["mission_id"].(float64); ok {
			doc.MissionID = int64(id)
		}
		if ts, ok := h.Fields["created_at"].(string); ok {
			doc.CreatedAt, _ = time.Parse(time.RFC3339, ts)
		}
		out = append(out, Hit{Document: doc, Score: h.Score})
	}
	return out, nil
}

// AddDocuments indexes langchaingo documents. Metadata keys kind, title,
// source and mission_id are mapped onto the stored document; kind defaults
// to a page.
func (s *DocumentStore) AddDocuments(ctx context.Context, docs []schema.Document, _ ...vectorstores.Option) ([]string, error) {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		doc := Document{Kind: KindPage, Text: d.PageContent}
		if v, ok := d.Metadata["kind"].(string); ok && v != "" {
			doc.Kind = v
		}
		if v, ok := d.Metadata["title"].(string); ok {
			doc.Title = v
		}
		if v, ok := d.Metadata["source"].(string); ok {
			doc.Source = v
		}
		if v, ok := d.Metadata["mission_id"].(int64); ok {
			doc.MissionID = v
		}
		id, err := s.Ingest(ctx, doc)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SimilaritySearch ranks by keyword relevance; there are no embeddings.
func (s *DocumentStore) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	var opts vectorstores.Options
	for _, o := range options {
		o(&opts)
	}
	hits, err := s.Search(ctx, query, numDocuments)
	if err != nil {
		return nil, err
	}
	out := make([]schema.Document, 0, len(hits))
	for _, h := range hits {
		if opts.ScoreThreshold > 0 && float32(h.Score) < opts.ScoreThreshold {
			continue
		}
		out = append(out, schema.Document{
			PageContent: h.Text,
			Score:       float32(h.Score),
			Metadata: map[string]any{
				"id":         h.ID,
				"kind":       h.Kind,
				"title":      h.Title,
				"source":     h.Source,
				"mission_id": h.MissionID,
			},
		})
	}
	return out, nil
}

func (s *DocumentStore) Count() (uint64, error) {
	return s.index.DocCount()
}

func (s *DocumentStore) Close() error {
	return s.index.Close()
}
