package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"leadcall-platform/internal/config"
)

// OAuthExchanger implements the refresh-token grant over HTTP form POST
// (the shape used by Zoho-style accounts endpoints).
type OAuthExchanger struct {
	httpClient   *http.Client
	accountsURL  string
	clientID     string
	clientSecret string
	refreshToken string
}

func NewOAuthExchanger(cfg config.CRMConfig, httpClient *http.Client) *OAuthExchanger {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &OAuthExchanger{
		httpClient:   httpClient,
		accountsURL:  strings.TrimRight(cfg.AccountsURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		refreshToken: cfg.RefreshToken,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Error       string `json:"error"`
}

func (e *OAuthExchanger) Exchange(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {e.refreshToken},
		"client_id":     {e.clientID},
		"client_secret": {e.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.accountsURL+"/oauth/v2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, err
	}

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, snippet(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, fmt.Errorf("token response decode: %w", err)
	}
	if tr.Error != "" {
		return "", 0, fmt.Errorf("token endpoint rejected grant: %s", tr.Error)
	}
	// Some providers return 200 with an empty body on a bad refresh token.
	if tr.AccessToken == "" {
		return "", 0, fmt.Errorf("token response missing access_token")
	}

	ttl := time.Duration(tr.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	return tr.AccessToken, ttl, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
