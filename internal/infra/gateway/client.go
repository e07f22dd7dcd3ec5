// Package gateway serves the logical tables through an HTTP sheet gateway
// (a small web app in front of the spreadsheet, e.g. an Apps Script
// deployment). Tables are exposed as /tables/{name}/rows.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/fleetpay-go/internal/domain"
	"github.com/boddenberg/fleetpay-go/internal/infra/resilience"
	"github.com/boddenberg/fleetpay-go/internal/sheet"
)

var tracer = otel.Tracer("gateway")

// Client wraps HTTP calls to the sheet gateway.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	guard      *resilience.Guard
	logger     *zap.Logger
}

// NewClient creates a gateway client.
func NewClient(httpClient *http.Client, baseURL, token string, guard *resilience.Guard, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		guard:      guard,
		logger:     logger,
	}
}

// rowsPayload is the wire shape of a table on the gateway.
type rowsPayload struct {
	Rows [][]any `json:"rows"`
}

// Name identifies the backend in logs and health output.
func (c *Client) Name() string { return "gateway" }

// ReadRows fetches the whole table.
func (c *Client) ReadRows(ctx context.Context, table sheet.Table) ([][]any, error) {
	ctx, span := tracer.Start(ctx, "Gateway.ReadRows")
	defer span.End()
	span.SetAttributes(attribute.String("table", string(table)))

	var rows [][]any
	err := c.guard.Do(ctx, func(ctx context.Context) error {
		body, status, err := c.doRequest(ctx, http.MethodGet, rowsPath(table), nil)
		if err != nil {
			return err
		}
		if status == http.StatusNotFound {
			return &domain.ErrTableMissing{Table: string(table)}
		}

		var payload rowsPayload
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&payload); err != nil {
			return resilience.Permanent(fmt.Errorf("failed to decode rows of %s: %w", table, err))
		}
		rows = payload.Rows
		return nil
	})
	if err != nil {
		return nil, c.wrap(table, err)
	}
	return rows, nil
}

// WriteRows replaces the table.
func (c *Client) WriteRows(ctx context.Context, table sheet.Table, rows [][]any) error {
	ctx, span := tracer.Start(ctx, "Gateway.WriteRows")
	defer span.End()
	span.SetAttributes(attribute.String("table", string(table)), attribute.Int("rows", len(rows)))

	err := c.guard.Do(ctx, func(ctx context.Context) error {
		_, status, err := c.doRequest(ctx, http.MethodPut, rowsPath(table), rowsPayload{Rows: rows})
		if err == nil && status == http.StatusNotFound {
			return resilience.Permanent(fmt.Errorf("gateway has no route for table %s", table))
		}
		return err
	})
	if err != nil {
		return c.wrap(table, err)
	}
	c.logger.Info("gateway: table rewritten", zap.String("table", string(table)), zap.Int("rows", len(rows)))
	return nil
}

// AppendRows appends rows; the gateway creates missing tables. Failed
// appends are never retried.
func (c *Client) AppendRows(ctx context.Context, table sheet.Table, rows [][]any) error {
	ctx, span := tracer.Start(ctx, "Gateway.AppendRows")
	defer span.End()
	span.SetAttributes(attribute.String("table", string(table)), attribute.Int("rows", len(rows)))

	if len(rows) == 0 {
		return nil
	}
	// Appends are not idempotent: a failure after the gateway committed the
	// rows would duplicate them on retry.
	err := c.guard.Do(ctx, func(ctx context.Context) error {
		_, status, err := c.doRequest(ctx, http.MethodPost, rowsPath(table), rowsPayload{Rows: rows})
		if err != nil {
			return resilience.Permanent(err)
		}
		if status == http.StatusNotFound {
			return resilience.Permanent(fmt.Errorf("gateway has no route for table %s", table))
		}
		return nil
	})
	if err != nil {
		return c.wrap(table, err)
	}
	c.logger.Info("gateway: rows appended", zap.String("table", string(table)), zap.Int("rows", len(rows)))
	return nil
}

// Ping calls the gateway health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, _, err := c.doRequest(ctx, http.MethodGet, "healthz", nil)
	return err
}

func rowsPath(table sheet.Table) string {
	return "tables/" + url.PathEscape(string(table)) + "/rows"
}

// doRequest executes an authenticated request. 404 is returned as a status,
// not an error, so callers can map it to a missing table; other non-2xx
// responses are errors, with 4xx marked permanent.
func (c *Client) doRequest(ctx context.Context, method, path string, payload any) ([]byte, int, error) {
	endpoint := fmt.Sprintf("%s/%s", c.baseURL, path)

	var reqBody io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, resilience.Permanent(err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		c.logger.Error("gateway: failed to create request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, 0, resilience.Permanent(err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("gateway: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("gateway: failed to read response body",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, resp.StatusCode, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("gateway: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		err := fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(body))
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, resp.StatusCode, resilience.Permanent(err)
		}
		return nil, resp.StatusCode, err
	}

	c.logger.Debug("gateway: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)
	return body, resp.StatusCode, nil
}

func (c *Client) wrap(table sheet.Table, err error) error {
	var (
		missing *domain.ErrTableMissing
		open    *domain.ErrCircuitOpen
	)
	if errors.As(err, &missing) || errors.As(err, &open) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &domain.ErrExternalService{Service: "gateway/" + string(table), Err: err}
}
