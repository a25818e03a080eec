package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"leadcall-platform/internal/config"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// TwilioProvider originates calls through the Twilio voice REST API.
type TwilioProvider struct {
	cfg        config.TwilioConfig
	httpClient *http.Client
	baseURL    string
}

func NewTwilioProvider(cfg config.TwilioConfig, httpClient *http.Client) *TwilioProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TwilioProvider{cfg: cfg, httpClient: httpClient, baseURL: twilioAPIBase}
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) MakeCall(ctx context.Context, req MakeCallRequest) (MakeCallResult, error) {
	if p.cfg.AccountSID == "" || p.cfg.AuthToken == "" {
		return MakeCallResult{Skipped: true, Reason: "twilio credentials not configured"}, nil
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", p.cfg.FromNumber)
	form.Set("Url", appendCallID(req.AnswerURL, req.CallID))
	if req.StatusCallbackURL != "" {
		form.Set("StatusCallback", appendCallID(req.StatusCallbackURL, req.CallID))
		form.Set("StatusCallbackMethod", "POST")
	}
	if req.TimeoutSeconds > 0 {
		form.Set("Timeout", strconv.Itoa(req.TimeoutSeconds))
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", p.baseURL, p.cfg.AccountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return MakeCallResult{}, err
	}
	httpReq.SetBasicAuth(p.cfg.AccountSID, p.cfg.AuthToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return MakeCallResult{}, fmt.Errorf("twilio: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &apiErr)
		if apiErr.Message != "" {
			return MakeCallResult{}, fmt.Errorf("twilio: %d %s (code %d)", resp.StatusCode, apiErr.Message, apiErr.Code)
		}
		return MakeCallResult{}, fmt.Errorf("twilio: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Sid    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return MakeCallResult{}, fmt.Errorf("twilio: decode response: %w", err)
	}
	return MakeCallResult{ProviderCallID: out.Sid, Status: out.Status}, nil
}

// appendCallID threads our call id through provider callbacks as a query
// parameter, since providers only echo their own identifiers.
func appendCallID(rawURL, callID string) string {
	if rawURL == "" || callID == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("call_id", callID)
	u.RawQuery = q.Encode()
	return u.String()
}
