package crm

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
	"strings"
	"time"

	"leadcall-platform/internal/config"
)

// Record is a CRM record payload. Field names follow the CRM's own
// naming (e.g. Last_Name, Lead_Status); mapping from normalized leads
// happens in internal/leads.
type Record map[string]any

// ID returns the record identifier, or "" when absent.
func (r Record) ID() string {
	if v, ok := r["id"].(string); ok {
		return v
	}
	return ""
}

// Client is a minimal CRM REST client: field search, create, update.
//
// Error policy:
// - 401/INVALID_TOKEN: token cleared and refreshed once, the request is
//   retried exactly once; a second auth failure propagates.
// - 429: honors Retry-After when present, otherwise backs off; 5xx backs
//   off; both within a small attempt budget.
// - Other 4xx propagate immediately as *APIError.
type Client struct {
	httpClient *http.Client
	baseURL    string
	module     string
	tokens     *TokenManager
	log        *slog.Logger

	maxAttempts int
	retryBase   time.Duration

	// sleep is injectable for deterministic tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg config.CRMConfig, tokens *TokenManager, httpClient *http.Client, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(cfg.APIBaseURL, "/"),
		module:      cfg.Module,
		tokens:      tokens,
		log:         log,
		maxAttempts: 3,
		retryBase:   time.Second,
		sleep:       sleepCtx,
	}
}

// SearchByField finds the first record whose field exactly matches value.
// Returns (nil, nil) when nothing matches.
func (c *Client) SearchByField(ctx context.Context, field, value string) (Record, error) {
	q := url.Values{"criteria": {fmt.Sprintf("(%s:equals:%s)", field, value)}}
	body, err := c.doJSON(ctx, http.MethodGet, "/crm/v2/"+c.module+"/search", q, nil)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		// 204: no matching records
		return nil, nil
	}

	var out struct {
		Data []Record `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("crm: search response decode: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, nil
	}
	return out.Data[0], nil
}

// Create inserts a record and returns its id.
func (c *Client) Create(ctx context.Context, data Record) (string, error) {
	return c.write(ctx, http.MethodPost, "/crm/v2/"+c.module, data)
}

// Update overwrites fields on an existing record and returns its id.
func (c *Client) Update(ctx context.Context, id string, data Record) (string, error) {
	return c.write(ctx, http.MethodPut, "/crm/v2/"+c.module+"/"+id, data)
}

type writeEntry struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details struct {
		ID string `json:"id"`
	} `json:"details"`
}

func (c *Client) write(ctx context.Context, method, path string, data Record) (string, error) {
	body, err := c.doJSON(ctx, method, path, nil, map[string]any{"data": []Record{data}})
	if err != nil {
		return "", err
	}

	var out struct {
		Data []writeEntry `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("crm: write response decode: %w", err)
	}
	if len(out.Data) == 0 {
		return "", fmt.Errorf("crm: write response empty")
	}
	entry := out.Data[0]
	if !strings.EqualFold(entry.Code, "SUCCESS") {
		return "", &APIError{StatusCode: http.StatusOK, Code: entry.Code, Message: entry.Message}
	}
	return entry.Details.ID, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	var reqBody []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = b
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	authRetried := false
	for attempt := 1; ; attempt++ {
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Zoho-oauthtoken "+token)
		if len(reqBody) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt >= c.maxAttempts {
				return nil, fmt.Errorf("crm: request failed: %w", err)
			}
			if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}

		if resp.StatusCode == http.StatusNoContent {
			return nil, nil
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return respBody, nil
		}

		apiErr := parseAPIError(resp.StatusCode, respBody)

		if apiErr.IsAuth() {
			if authRetried {
				return nil, apiErr
			}
			authRetried = true
			c.log.Warn("crm auth rejected, refreshing token", "status", resp.StatusCode, "code", apiErr.Code)
			c.tokens.Clear()
			if _, err := c.tokens.Refresh(ctx); err != nil {
				return nil, err
			}
			// The auth retry does not consume the transient budget.
			attempt--
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			if attempt >= c.maxAttempts {
				return nil, apiErr
			}
			delay := c.backoff(attempt)
			if resp.StatusCode == http.StatusTooManyRequests {
				if ra := retryAfter(resp.Header); ra > 0 {
					delay = ra
				}
			}
			c.log.Warn("crm transient failure, retrying", "status", resp.StatusCode, "delay", delay)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		return nil, apiErr
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	return c.retryBase << (attempt - 1)
}

func parseAPIError(status int, body []byte) *APIError {
	var top struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Data    []struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"data"`
	}
	_ = json.Unmarshal(body, &top)

	code, msg := top.Code, top.Message
	if code == "" && len(top.Data) > 0 {
		code, msg = top.Data[0].Code, top.Data[0].Message
	}
	if msg == "" {
		msg = snippet(body)
	}
	return &APIError{StatusCode: status, Code: code, Message: msg}
}

func retryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
