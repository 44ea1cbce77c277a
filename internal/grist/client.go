// Package grist is the HTTP client for the Grist REST API. Every document
// mutation flows through Apply; the remaining calls are metadata reads and
// record CRUD passthrough.
package grist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/gwhthompson/grist-mcp-server-sub001/internal/logging"
)

const defaultBaseURL = "https://docs.getgrist.com"

// Config holds client construction parameters.
type Config struct {
	// BaseURL is the Grist installation root, e.g. https://docs.getgrist.com
	// or a self-hosted origin. The /api prefix is added by the client.
	BaseURL string
	// APIKey is the bearer key sent on every request.
	APIKey string
	// Timeout bounds each HTTP round-trip. Zero disables the client timeout.
	Timeout time.Duration
	// UserAgent overrides the default User-Agent header.
	UserAgent string
	Logger    *logging.Logger
}

// Client talks to one Grist installation.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	logger    *logging.Logger
}

// New builds a client. The API key rides on an oauth2 static-token transport
// and all requests are traced through otelhttp.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &logging.Logger{Logger: slog.Default()}
	}

	transport := &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey}),
		Base:   http.DefaultTransport,
	}

	return &Client{
		baseURL:   baseURL,
		userAgent: cfg.UserAgent,
		http: &http.Client{
			Transport: otelhttp.NewTransport(transport),
			Timeout:   cfg.Timeout,
		},
		logger: logger.WithFields(slog.String("component", "grist_client")),
	}
}

// APIError is a non-2xx response from the Grist API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("grist: API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("grist: API returned status %d: %s", e.StatusCode, e.Message)
}

// Apply submits one ordered batch of user-action tuples against a document.
// The server treats the batch as a single unit; there is no transaction
// across separate Apply calls.
func (c *Client) Apply(ctx context.Context, docID string, actions [][]any) (*ApplyResult, error) {
	ctx, span := startSpan(ctx, "grist.apply",
		attribute.String("grist.doc_id", docID),
		attribute.Int("grist.action_count", len(actions)),
	)
	defer span.End()

	var result ApplyResult
	path := fmt.Sprintf("/api/docs/%s/apply", url.PathEscape(docID))
	if err := c.do(ctx, http.MethodPost, path, nil, actions, &result); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	c.logger.Debug("applied actions",
		slog.String("doc_id", docID),
		slog.Int("actions", len(actions)),
		slog.Int64("action_num", result.ActionNum),
	)
	return &result, nil
}

// ListTables returns table metadata for a document.
func (c *Client) ListTables(ctx context.Context, docID string) ([]TableMeta, error) {
	ctx, span := startSpan(ctx, "grist.list_tables", attribute.String("grist.doc_id", docID))
	defer span.End()

	var result struct {
		Tables []TableMeta `json:"tables"`
	}
	path := fmt.Sprintf("/api/docs/%s/tables", url.PathEscape(docID))
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &result); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return result.Tables, nil
}

// ListColumns returns column metadata for one table.
func (c *Client) ListColumns(ctx context.Context, docID, tableID string) ([]ColumnMeta, error) {
	ctx, span := startSpan(ctx, "grist.list_columns",
		attribute.String("grist.doc_id", docID),
		attribute.String("grist.table_id", tableID),
	)
	defer span.End()

	var result struct {
		Columns []ColumnMeta `json:"columns"`
	}
	path := fmt.Sprintf("/api/docs/%s/tables/%s/columns", url.PathEscape(docID), url.PathEscape(tableID))
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &result); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return result.Columns, nil
}

// ListWorkspaces returns the caller's workspaces, each with its documents.
func (c *Client) ListWorkspaces(ctx context.Context) ([]Workspace, error) {
	ctx, span := startSpan(ctx, "grist.list_workspaces")
	defer span.End()

	var workspaces []Workspace
	if err := c.do(ctx, http.MethodGet, "/api/orgs/current/workspaces", nil, nil, &workspaces); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return workspaces, nil
}

// ListDocuments returns the documents of one workspace.
func (c *Client) ListDocuments(ctx context.Context, workspaceID int64) ([]Doc, error) {
	ctx, span := startSpan(ctx, "grist.list_documents", attribute.Int64("grist.workspace_id", workspaceID))
	defer span.End()

	var workspace Workspace
	path := fmt.Sprintf("/api/workspaces/%d", workspaceID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &workspace); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return workspace.Docs, nil
}

// ListRecords returns rows of a table, optionally filtered, sorted, limited.
func (c *Client) ListRecords(ctx context.Context, docID, tableID string, opts ListRecordsOptions) ([]Record, error) {
	ctx, span := startSpan(ctx, "grist.list_records",
		attribute.String("grist.doc_id", docID),
		attribute.String("grist.table_id", tableID),
	)
	defer span.End()

	query := url.Values{}
	if len(opts.Filter) > 0 {
		encoded, err := json.Marshal(opts.Filter)
		if err != nil {
			return nil, fmt.Errorf("grist: encode filter: %w", err)
		}
		query.Set("filter", string(encoded))
	}
	if opts.Sort != "" {
		query.Set("sort", opts.Sort)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}

	var result struct {
		Records []Record `json:"records"`
	}
	path := fmt.Sprintf("/api/docs/%s/tables/%s/records", url.PathEscape(docID), url.PathEscape(tableID))
	if err := c.do(ctx, http.MethodGet, path, query, nil, &result); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return result.Records, nil
}

// AddRecords inserts rows and returns the assigned row ids in input order.
func (c *Client) AddRecords(ctx context.Context, docID, tableID string, fields []map[string]any) ([]int64, error) {
	ctx, span := startSpan(ctx, "grist.add_records",
		attribute.String("grist.doc_id", docID),
		attribute.String("grist.table_id", tableID),
		attribute.Int("grist.record_count", len(fields)),
	)
	defer span.End()

	type newRecord struct {
		Fields map[string]any `json:"fields"`
	}
	body := struct {
		Records []newRecord `json:"records"`
	}{}
	for _, f := range fields {
		body.Records = append(body.Records, newRecord{Fields: f})
	}

	var result struct {
		Records []struct {
			ID int64 `json:"id"`
		} `json:"records"`
	}
	path := fmt.Sprintf("/api/docs/%s/tables/%s/records", url.PathEscape(docID), url.PathEscape(tableID))
	if err := c.do(ctx, http.MethodPost, path, nil, body, &result); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	ids := make([]int64, len(result.Records))
	for i, rec := range result.Records {
		ids[i] = rec.ID
	}
	return ids, nil
}

// UpdateRecords patches existing rows by id.
func (c *Client) UpdateRecords(ctx context.Context, docID, tableID string, records []Record) error {
	ctx, span := startSpan(ctx, "grist.update_records",
		attribute.String("grist.doc_id", docID),
		attribute.String("grist.table_id", tableID),
		attribute.Int("grist.record_count", len(records)),
	)
	defer span.End()

	body := struct {
		Records []Record `json:"records"`
	}{Records: records}
	path := fmt.Sprintf("/api/docs/%s/tables/%s/records", url.PathEscape(docID), url.PathEscape(tableID))
	if err := c.do(ctx, http.MethodPatch, path, nil, body, nil); err != nil {
		recordSpanError(span, err)
		return err
	}
	return nil
}

// DeleteRecords removes rows by id.
func (c *Client) DeleteRecords(ctx context.Context, docID, tableID string, ids []int64) error {
	ctx, span := startSpan(ctx, "grist.delete_records",
		attribute.String("grist.doc_id", docID),
		attribute.String("grist.table_id", tableID),
		attribute.Int("grist.record_count", len(ids)),
	)
	defer span.End()

	path := fmt.Sprintf("/api/docs/%s/tables/%s/data/delete", url.PathEscape(docID), url.PathEscape(tableID))
	if err := c.do(ctx, http.MethodPost, path, nil, ids, nil); err != nil {
		recordSpanError(span, err)
		return err
	}
	return nil
}

// SQLQuery runs a read-only SQL statement against a document.
func (c *Client) SQLQuery(ctx context.Context, docID, statement string, args []any) (*SQLResult, error) {
	ctx, span := startSpan(ctx, "grist.sql_query", attribute.String("grist.doc_id", docID))
	defer span.End()

	body := map[string]any{"sql": statement}
	if len(args) > 0 {
		body["args"] = args
	}
	var result SQLResult
	path := fmt.Sprintf("/api/docs/%s/sql", url.PathEscape(docID))
	if err := c.do(ctx, http.MethodPost, path, nil, body, &result); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("grist: encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("grist: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("grist: %s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("grist: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: parseErrorMessage(data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("grist: decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}

func parseErrorMessage(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Details any    `json:"details"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		return string(bytes.TrimSpace(data))
	}
	return body.Error
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("grist-mcp-server/grist")
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
