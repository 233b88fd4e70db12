package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iff-guardian/fusion/internal/domain"
)

// playbookClaims identifies one playbook-invocation request to the
// external SOAR endpoint. This is service-to-service signing only,
// distinct from any end-user session token.
type playbookClaims struct {
	PlaybookID    string `json:"playbookId"`
	CorrelationID string `json:"correlationId"`
	jwt.RegisteredClaims
}

// JWTPlaybookInvoker triggers an execute-playbook action via an HTTP
// POST to an external SOAR endpoint, authenticated with a short-lived
// HMAC-signed JWT instead of a static shared secret in the request
// body.
type JWTPlaybookInvoker struct {
	endpoint string
	secret   []byte
	expiry   time.Duration
	client   *http.Client
}

// NewJWTPlaybookInvoker builds an invoker posting to endpoint, signing
// each request's token with secret and setting it to expire after
// expiry.
func NewJWTPlaybookInvoker(endpoint string, secret []byte, expiry time.Duration) *JWTPlaybookInvoker {
	return &JWTPlaybookInvoker{
		endpoint: endpoint,
		secret:   secret,
		expiry:   expiry,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Invoke implements PlaybookInvoker.
func (p *JWTPlaybookInvoker) Invoke(ctx context.Context, playbookID string, threat *domain.UnifiedThreat, parameters map[string]any) error {
	now := time.Now()
	claims := playbookClaims{
		PlaybookID:    playbookID,
		CorrelationID: threat.CorrelationID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.expiry)),
			Issuer:    "fusion-engine",
			Subject:   playbookID,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return fmt.Errorf("dispatcher: sign playbook token: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"threat":     threat,
		"parameters": parameters,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/playbooks/"+playbookID+"/invoke", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("dispatcher: playbook invocation failed with status %d", resp.StatusCode)
	}
	return nil
}
