//go:build integration

package testutil

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/tourneyhub/economy/internal/auth"
	"github.com/tourneyhub/economy/internal/provider"
)

// Do sends a request to the test server and decodes a JSON object response.
func (env *TestEnv) Do(method, path, token, body string, headers map[string]string) (int, map[string]interface{}) {
	env.t.Helper()
	req, err := http.NewRequest(method, env.Server.URL+path, strings.NewReader(body))
	if err != nil {
		env.t.Fatalf("Do: build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

// PlayerToken issues a player-realm token for userID.
func (env *TestEnv) PlayerToken(userID string) string {
	return env.token(auth.RealmPlayer, userID, "")
}

// AdminToken issues an admin-realm token with role.
func (env *TestEnv) AdminToken(role string) string {
	return env.token(auth.RealmAdmin, "integration-admin", role)
}

func (env *TestEnv) token(realm auth.Realm, subject, role string) string {
	env.t.Helper()
	tok, err := env.JWTMgr.GenerateToken(realm, subject, role)
	if err != nil {
		env.t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

// Webhook posts body to /webhooks/stripe with a valid signature.
func (env *TestEnv) Webhook(body string) (int, map[string]interface{}) {
	sig := provider.NewStripeProvider(TestStripeWebhookSecret).SignatureHeader([]byte(body), time.Now())
	return env.Do(http.MethodPost, "/webhooks/stripe", "", body, map[string]string{"Stripe-Signature": sig})
}
