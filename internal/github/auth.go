package github

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource supplies tokens for GitHub API requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed personal access token.
type StaticTokenSource struct {
	token string
}

// NewStaticTokenSource creates a token source around a personal access token.
func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: token}
}

// Token returns the configured token.
func (s *StaticTokenSource) Token(ctx context.Context) (string, error) {
	return s.token, nil
}

// AppTokenSource authenticates as a GitHub App installation. It signs a
// short-lived JWT with the App private key and exchanges it for a one hour
// installation access token, cached until shortly before expiry.
type AppTokenSource struct {
	appID          string
	installationID string
	privateKey     *rsa.PrivateKey
	apiURL         string
	httpClient     *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewAppTokenSource parses the PEM encoded private key and creates a token
// source for the given App installation.
func NewAppTokenSource(appID, installationID, privateKeyPEM, apiURL string) (*AppTokenSource, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parsing GitHub App private key: %w", err)
	}

	if apiURL == "" {
		apiURL = defaultBaseURL
	}

	return &AppTokenSource{
		appID:          appID,
		installationID: installationID,
		privateKey:     key,
		apiURL:         apiURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Token returns a valid installation access token, refreshing it when the
// cached one is within a minute of expiring.
func (s *AppTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Until(s.expiresAt) > time.Minute {
		return s.token, nil
	}

	appJWT, err := s.signJWT()
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/app/installations/%s/access_tokens", s.apiURL, s.installationID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, nil)
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("exchanging App JWT: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var payload struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if payload.Token == "" {
		return "", fmt.Errorf("token exchange returned an empty token")
	}

	s.token = payload.Token
	s.expiresAt = payload.ExpiresAt
	return s.token, nil
}

// signJWT builds the App authentication JWT. Issued-at is backdated a minute
// to tolerate clock drift; ten minutes is the longest lifetime GitHub accepts.
func (s *AppTokenSource) signJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
		Issuer:    s.appID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing App JWT: %w", err)
	}
	return signed, nil
}
