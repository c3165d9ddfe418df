// Package monarch is a finance.Client for the Monarch Money GraphQL API.
//
// Only the three read queries the reports need are implemented. Transport
// failures are classified here: an HTTP 401/403 or an authentication
// GraphQL error is SESSION_EXPIRED, anything else is API_ERROR. Retries are
// left to the caller.
package monarch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"budgetcheck/internal/core"
	"budgetcheck/internal/finance"
)

const (
	DefaultBaseURL = "https://api.monarchmoney.com"
	graphqlPath    = "/graphql"

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 16 << 20
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
	loc        *time.Location
}

var _ finance.Client = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for debug payload summaries.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock sets the clock and zone used to default an unset month.
func WithClock(now func() time.Time, loc *time.Location) Option {
	return func(c *Client) {
		c.now = now
		c.loc = loc
	}
}

// New returns a client authenticating with token against baseURL.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Monarch API URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid Monarch API URL scheme '%s': must be 'http' or 'https'", u.Scheme)
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("monarch client requires a session token")
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
		logger:     slog.Default(),
		now:        time.Now,
		loc:        time.Local,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchBudgets implements finance.BudgetReader
func (c *Client) FetchBudgets(ctx context.Context, month core.Month) ([]core.BudgetCategory, error) {
	month = c.monthOrCurrent(month)
	vars := map[string]any{
		"startDate": month.First().String(),
		"endDate":   month.Last().String(),
	}
	var resp budgetsResponse
	if err := c.query(ctx, "GetJointPlannedCashflow", budgetsQuery, vars, &resp); err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "Budget data received",
		"month", month.String(),
		"monthly_amounts_by_category", len(resp.BudgetData.MonthlyAmountsByCategory),
		"category_groups", len(resp.CategoryGroups))
	return parseBudgets(resp, month), nil
}

// FetchCategories implements finance.CategoryReader
func (c *Client) FetchCategories(ctx context.Context, _ core.Month) ([]core.Category, error) {
	var resp categoriesResponse
	if err := c.query(ctx, "GetCategories", categoriesQuery, nil, &resp); err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "Categories received", "count", len(resp.Categories))
	return parseCategories(resp), nil
}

// FetchTransactions implements finance.TransactionReader
func (c *Client) FetchTransactions(ctx context.Context, q finance.TransactionQuery) ([]core.Transaction, error) {
	month := c.monthOrCurrent(q.Month)
	limit := q.Limit
	if limit <= 0 {
		limit = finance.DefaultLimit
	}
	filters := map[string]any{
		"startDate": month.First().String(),
		"endDate":   month.Last().String(),
	}
	if len(q.CategoryIDs) > 0 {
		filters["categories"] = q.CategoryIDs
	}
	vars := map[string]any{
		"offset":  q.Offset,
		"limit":   limit,
		"orderBy": "date",
		"filters": filters,
	}
	var resp transactionsResponse
	if err := c.query(ctx, "GetTransactionsList", transactionsQuery, vars, &resp); err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "Transactions received",
		"month", month.String(),
		"results", len(resp.AllTransactions.Results),
		"total_count", resp.AllTransactions.TotalCount)
	return parseTransactions(resp)
}

func (c *Client) monthOrCurrent(m core.Month) core.Month {
	if !m.IsZero() {
		return m
	}
	return core.MonthOf(c.now().In(c.loc))
}

type graphqlRequest struct {
	OperationName string         `json:"operationName"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message    string         `json:"message"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

func (c *Client) query(ctx context.Context, op, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(graphqlRequest{OperationName: op, Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+graphqlPath, bytes.NewReader(body))
	if err != nil {
		return core.NewError(core.CodeAPIError, fmt.Sprintf("Failed to build %s request: %v", op, err), err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Client-Platform", "web")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Deadline and cancellation are classified by the caller.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", op, ctxErr)
		}
		return core.NewError(core.CodeAPIError, fmt.Sprintf("Failed to reach Monarch (%s): %v", op, err), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", op, ctxErr)
		}
		return core.NewError(core.CodeAPIError, fmt.Sprintf("Failed to read %s response: %v", op, err), err)
	}

	c.logger.DebugContext(ctx, "Monarch response",
		"operation", op,
		"status_code", resp.StatusCode,
		"bytes", len(respBody),
		"duration_ms", time.Since(start).Milliseconds())

	if err := classifyStatus(op, resp.StatusCode, respBody); err != nil {
		return err
	}

	var gr graphqlResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return core.NewError(core.CodeAPIError, fmt.Sprintf("Unexpected %s response: %v", op, err), err)
	}
	if len(gr.Errors) > 0 {
		return classifyGraphQLErrors(op, gr.Errors)
	}
	if len(gr.Data) == 0 || string(gr.Data) == "null" {
		return core.Errorf(core.CodeAPIError, "Unexpected %s response: no data", op)
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return core.NewError(core.CodeAPIError, fmt.Sprintf("Unexpected %s response shape: %v", op, err), err)
	}
	return nil
}

const sessionExpiredMessage = "Session appears to be expired or invalid. Re-run the login flow to refresh the session."

func classifyStatus(op string, status int, body []byte) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return core.NewError(core.CodeSessionExpired, sessionExpiredMessage,
			fmt.Errorf("%s: HTTP %d", op, status))
	case status == http.StatusTooManyRequests:
		return core.Errorf(core.CodeAPIError, "Monarch rate limit reached (%s): HTTP %d", op, status)
	case status >= 400:
		return core.Errorf(core.CodeAPIError, "Monarch API error (%s): HTTP %d: %s", op, status, snippet(body))
	}
	return nil
}

func classifyGraphQLErrors(op string, errs []graphqlError) error {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
		if isAuthError(e) {
			return core.NewError(core.CodeSessionExpired, sessionExpiredMessage,
				fmt.Errorf("%s: %s", op, e.Message))
		}
	}
	return core.Errorf(core.CodeAPIError, "Failed to fetch %s: %s", op, strings.Join(msgs, "; "))
}

var authMarkers = []string{
	"unauthorized",
	"unauthenticated",
	"not authenticated",
	"forbidden",
	"invalid token",
	"token expired",
	"authentication credentials",
}

func isAuthError(e graphqlError) bool {
	if code, ok := e.Extensions["code"].(string); ok {
		switch strings.ToUpper(code) {
		case "UNAUTHENTICATED", "FORBIDDEN", "UNAUTHORIZED":
			return true
		}
	}
	msg := strings.ToLower(e.Message)
	for _, m := range authMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
