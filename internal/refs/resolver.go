// Package refs resolves human-readable table and column names into the
// numeric identifiers the backend uses internally. Table maps are memoized
// per document and must be invalidated after any schema-mutating apply call;
// resolution is exact and case-sensitive, and a missing name is always a hard
// failure.
package refs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gwhthompson/grist-mcp-server-sub001/internal/grist"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/logging"
)

// MetadataSource provides the table and column listings the resolver reads.
type MetadataSource interface {
	ListTables(ctx context.Context, docID string) ([]grist.TableMeta, error)
	ListColumns(ctx context.Context, docID, tableID string) ([]grist.ColumnMeta, error)
}

// TableRefMap maps table names to numeric table refs. A map is an immutable
// snapshot; it goes stale the moment a schema-mutating action is issued and
// is only refreshed through Invalidate.
type TableRefMap map[string]int64

// Names returns the table names in sorted order.
func (m TableRefMap) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NotFoundError reports a table or column name absent from the fetched
// metadata. CaseMismatch is set when a candidate differing only by case
// exists.
type NotFoundError struct {
	Kind         string // "table" or "column"
	Name         string
	DocID        string
	TableID      string
	CaseMismatch string
	Available    []string
}

func (e *NotFoundError) Error() string {
	var b strings.Builder
	switch e.Kind {
	case "column":
		fmt.Fprintf(&b, "column %q not found in table %q of document %s", e.Name, e.TableID, e.DocID)
	default:
		fmt.Fprintf(&b, "table %q not found in document %s", e.Name, e.DocID)
	}
	if e.CaseMismatch != "" {
		fmt.Fprintf(&b, " (names are case-sensitive; did you mean %q?)", e.CaseMismatch)
	}
	if len(e.Available) > 0 {
		fmt.Fprintf(&b, "; available: %s", strings.Join(e.Available, ", "))
	}
	return b.String()
}

// Resolver memoizes per-document table maps over a metadata source.
// The design assumes at most one build operates against a given document at a
// time; the mutex only protects the cache map itself.
type Resolver struct {
	source MetadataSource
	logger *logging.Logger

	mu    sync.Mutex
	cache map[string]TableRefMap
}

// NewResolver builds a resolver over the given metadata source.
func NewResolver(source MetadataSource, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = &logging.Logger{Logger: slog.Default()}
	}
	return &Resolver{
		source: source,
		logger: logger.WithFields(slog.String("component", "refs")),
		cache:  make(map[string]TableRefMap),
	}
}

// TableRefs returns the name-to-ref map for a document, fetching and
// memoizing it on first use.
func (r *Resolver) TableRefs(ctx context.Context, docID string) (TableRefMap, error) {
	r.mu.Lock()
	cached, ok := r.cache[docID]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	ctx, span := startSpan(ctx, "refs.fetch_table_refs", attribute.String("grist.doc_id", docID))
	defer span.End()

	tables, err := r.source.ListTables(ctx, docID)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("refs: list tables for document %s: %w", docID, err)
	}

	refs := make(TableRefMap, len(tables))
	for _, table := range tables {
		refs[table.ID] = table.Fields.TableRef
	}

	r.mu.Lock()
	r.cache[docID] = refs
	r.mu.Unlock()

	r.logger.Debug("cached table refs", slog.String("doc_id", docID), slog.Int("tables", len(refs)))
	return refs, nil
}

// TableRef resolves one table name. Resolution is exact and case-sensitive.
func (r *Resolver) TableRef(ctx context.Context, docID, tableName string) (int64, error) {
	refs, err := r.TableRefs(ctx, docID)
	if err != nil {
		return 0, err
	}
	if ref, ok := refs[tableName]; ok {
		return ref, nil
	}
	notFound := &NotFoundError{
		Kind:      "table",
		Name:      tableName,
		DocID:     docID,
		Available: refs.Names(),
	}
	for name := range refs {
		if strings.EqualFold(name, tableName) {
			notFound.CaseMismatch = name
			break
		}
	}
	return 0, notFound
}

// ColumnRef resolves one column name within a table. Column metadata is
// fetched per call; only the table map is memoized.
func (r *Resolver) ColumnRef(ctx context.Context, docID, tableName, columnName string) (int64, error) {
	// Resolving the table first keeps the error for an unknown table distinct
	// from an unknown column.
	if _, err := r.TableRef(ctx, docID, tableName); err != nil {
		return 0, err
	}

	ctx, span := startSpan(ctx, "refs.resolve_column",
		attribute.String("grist.doc_id", docID),
		attribute.String("grist.table_id", tableName),
		attribute.String("grist.column_id", columnName),
	)
	defer span.End()

	columns, err := r.source.ListColumns(ctx, docID, tableName)
	if err != nil {
		recordSpanError(span, err)
		return 0, fmt.Errorf("refs: list columns for table %s of document %s: %w", tableName, docID, err)
	}

	notFound := &NotFoundError{
		Kind:    "column",
		Name:    columnName,
		DocID:   docID,
		TableID: tableName,
	}
	for _, column := range columns {
		if column.ID == columnName {
			return column.Fields.ColRef, nil
		}
		if notFound.CaseMismatch == "" && strings.EqualFold(column.ID, columnName) {
			notFound.CaseMismatch = column.ID
		}
		notFound.Available = append(notFound.Available, column.ID)
	}
	sort.Strings(notFound.Available)
	recordSpanError(span, notFound)
	return 0, notFound
}

// Invalidate drops the cached table map for a document. Callers invalidate
// after issuing any batch that creates tables, plain or summary, before
// relying on the map again.
func (r *Resolver) Invalidate(docID string) {
	r.mu.Lock()
	_, existed := r.cache[docID]
	delete(r.cache, docID)
	r.mu.Unlock()
	if existed {
		r.logger.Debug("invalidated table refs", slog.String("doc_id", docID))
	}
}

// CachedDocs returns the document ids with a live cache entry, for
// diagnostics.
func (r *Resolver) CachedDocs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	docs := make([]string, 0, len(r.cache))
	for docID := range r.cache {
		docs = append(docs, docID)
	}
	sort.Strings(docs)
	return docs
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("grist-mcp-server/refs")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
