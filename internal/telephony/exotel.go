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
)

// ExotelProvider originates calls through the Exotel connect API.
type ExotelProvider struct {
	accountSID string
	apiKey     string
	apiToken   string
	callerID   string
	httpClient *http.Client
	baseURL    string
}

func NewExotelProvider(accountSID, apiKey, apiToken, callerID, subdomain string, httpClient *http.Client) *ExotelProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if subdomain == "" {
		subdomain = "api.exotel.com"
	}
	return &ExotelProvider{
		accountSID: accountSID,
		apiKey:     apiKey,
		apiToken:   apiToken,
		callerID:   callerID,
		httpClient: httpClient,
		baseURL:    "https://" + subdomain,
	}
}

func (p *ExotelProvider) Name() string { return "exotel" }

func (p *ExotelProvider) MakeCall(ctx context.Context, req MakeCallRequest) (MakeCallResult, error) {
	if p.accountSID == "" || p.apiKey == "" || p.apiToken == "" {
		return MakeCallResult{Skipped: true, Reason: "exotel credentials not configured"}, nil
	}

	form := url.Values{}
	form.Set("From", req.To)
	form.Set("CallerId", p.callerID)
	form.Set("Url", appendCallID(req.AnswerURL, req.CallID))
	if req.StatusCallbackURL != "" {
		form.Set("StatusCallback", appendCallID(req.StatusCallbackURL, req.CallID))
	}
	if req.TimeoutSeconds > 0 {
		form.Set("TimeLimit", strconv.Itoa(req.TimeoutSeconds))
	}

	endpoint := fmt.Sprintf("%s/v1/Accounts/%s/Calls/connect.json", p.baseURL, p.accountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return MakeCallResult{}, err
	}
	httpReq.SetBasicAuth(p.apiKey, p.apiToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return MakeCallResult{}, fmt.Errorf("exotel: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			RestException struct {
				Message string `json:"Message"`
			} `json:"RestException"`
		}
		_ = json.Unmarshal(body, &apiErr)
		if msg := apiErr.RestException.Message; msg != "" {
			return MakeCallResult{}, fmt.Errorf("exotel: %d %s", resp.StatusCode, msg)
		}
		return MakeCallResult{}, fmt.Errorf("exotel: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Call struct {
			Sid    string `json:"Sid"`
			Status string `json:"Status"`
		} `json:"Call"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return MakeCallResult{}, fmt.Errorf("exotel: decode response: %w", err)
	}
	return MakeCallResult{ProviderCallID: out.Call.Sid, Status: out.Call.Status}, nil
}
