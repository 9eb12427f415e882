package riot

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Username is the fixed user name of the local Riot endpoint
const Username = "riot"

// BasicTokenSource returns a static token source whose token renders as
// "Authorization: Basic base64(riot:<password>)". The local endpoint has no token
// exchange, so the token never expires.
func BasicTokenSource(creds Credentials) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: base64.StdEncoding.EncodeToString([]byte(Username + ":" + creds.Password)),
		TokenType:   "Basic",
	})
}

// AuthorizationHeader builds the header sent with the WebSocket upgrade request
func AuthorizationHeader(creds Credentials) (http.Header, error) {
	token, err := BasicTokenSource(creds).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to get basic token: %w", err)
	}
	req, err := http.NewRequest(http.MethodGet, "/", nil)
	if err != nil {
		return nil, err
	}
	token.SetAuthHeader(req)
	return req.Header, nil
}

// InsecureTLSConfig skips certificate verification. The Riot Client serves a
// self-signed certificate on 127.0.0.1 that is not stored anywhere.
func InsecureTLSConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true} //nolint:gosec // local self-signed endpoint
}

// LocalAPIClient talks to the REST side of the local endpoint
type LocalAPIClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewLocalAPIClient creates a client authenticated with the lockfile password
func NewLocalAPIClient(ctx context.Context, creds Credentials, host string, logger *slog.Logger) *LocalAPIClient {
	if logger == nil {
		logger = slog.Default()
	}
	if host == "" {
		host = DefaultHost
	}

	base := &http.Client{
		Timeout:   10 * time.Second,
		Transport: &http.Transport{TLSClientConfig: InsecureTLSConfig()},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	return &LocalAPIClient{
		baseURL:    fmt.Sprintf("%s://%s", creds.Protocol.HTTPScheme(), creds.Address(host)),
		httpClient: oauth2.NewClient(ctx, BasicTokenSource(creds)),
		logger:     logger,
	}
}

// GetSession returns the current chat session, which carries the player's puuid
func (c *LocalAPIClient) GetSession(ctx context.Context) (*Session, error) {
	endpoint := c.baseURL + "/chat/v1/session"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug("Requesting chat session",
		"function", "GetSession",
		"endpoint", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("chat session request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to decode chat session: %w", err)
	}
	return &session, nil
}
