package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	appChat "github.com/paire/chat-billing/internal/application/chat"
	appLedger "github.com/paire/chat-billing/internal/application/ledger"
	"github.com/paire/chat-billing/internal/domain/billing"
	"github.com/paire/chat-billing/internal/infrastructure/events"
	"github.com/paire/chat-billing/internal/infrastructure/memory"
)

type apiFixture struct {
	server *httptest.Server
	store  *memory.Store
}

func newAPIFixture(t *testing.T, apiKeyHash string) *apiFixture {
	t.Helper()
	store := memory.NewStore()
	hub := events.NewHub()
	ledgerSvc := appLedger.NewService(store, hub, nil, billing.DefaultPricing(), zerolog.Nop())
	chatSvc := appChat.NewService(store, ledgerSvc, store,
		appChat.AllowAllModeration{}, appChat.NoTopUp{}, hub, zerolog.Nop())
	srv := NewServer(chatSvc, ledgerSvc, hub, apiKeyHash, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &apiFixture{server: ts, store: store}
}

func (f *apiFixture) seedProfile(t *testing.T, mutate func(p *billing.Profile)) uuid.UUID {
	t.Helper()
	p := &billing.Profile{
		UserID:         uuid.New(),
		GenderCategory: billing.GenderNonBinary,
		RoyalTier:      billing.TierNone,
		PopularityBand: billing.BandHigh,
		AccountAgeDays: 30,
	}
	if mutate != nil {
		mutate(p)
	}
	f.store.SeedProfile(p)
	return p.UserID
}

func (f *apiFixture) post(t *testing.T, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, f.server.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp, decodeResp(t, resp)
}

func (f *apiFixture) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	return resp, decodeResp(t, resp)
}

func decodeResp(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestSessionEndpoints(t *testing.T) {
	f := newAPIFixture(t, "")
	payer := f.seedProfile(t, func(p *billing.Profile) { p.GenderCategory = billing.GenderMale })
	earner := f.seedProfile(t, func(p *billing.Profile) { p.GenderCategory = billing.GenderFemale })

	resp, body := f.post(t, "/v1/sessions", map[string]any{
		"senderId":   payer.String(),
		"receiverId": earner.String(),
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "FREE_PHASE", body["state"])
	assert.Equal(t, payer.String(), body["payerId"])
	sessionID := body["sessionId"].(string)

	t.Run("get session", func(t *testing.T) {
		resp, body := f.get(t, "/v1/sessions/"+sessionID)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, sessionID, body["sessionId"])
	})

	t.Run("unknown session is 404", func(t *testing.T) {
		resp, body := f.get(t, "/v1/sessions/"+uuid.NewString())
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", body["error"])
	})

	t.Run("free messages pass", func(t *testing.T) {
		resp, body := f.post(t, "/v1/sessions/"+sessionID+"/messages", map[string]any{
			"authorId": payer.String(),
			"text":     "hey there",
		}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, false, body["billed"])
	})

	t.Run("non-participant is forbidden", func(t *testing.T) {
		resp, body := f.post(t, "/v1/sessions/"+sessionID+"/messages", map[string]any{
			"authorId": uuid.NewString(),
			"text":     "hi",
		}, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "FORBIDDEN", body["error"])
	})

	t.Run("unknown body field is rejected", func(t *testing.T) {
		resp, _ := f.post(t, "/v1/sessions/"+sessionID+"/messages", map[string]any{
			"authorId": payer.String(),
			"payload":  "nope",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestDepositAndBillingOverHTTP(t *testing.T) {
	f := newAPIFixture(t, "")
	payer := f.seedProfile(t, func(p *billing.Profile) { p.GenderCategory = billing.GenderMale })
	earner := f.seedProfile(t, func(p *billing.Profile) { p.GenderCategory = billing.GenderFemale })

	resp, body := f.post(t, "/v1/wallets/"+payer.String()+"/credit",
		map[string]any{"amountTokens": 100}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(100), body["availableBalance"])

	_, body = f.post(t, "/v1/sessions", map[string]any{
		"senderId":   payer.String(),
		"receiverId": earner.String(),
	}, nil)
	sessionID := body["sessionId"].(string)

	// Run out the free pool.
	for i := 0; i < 100; i++ {
		resp, body := f.post(t, "/v1/sessions/"+sessionID+"/messages", map[string]any{
			"authorId": payer.String(),
			"text":     "hello again",
		}, nil)
		if resp.StatusCode == http.StatusPaymentRequired {
			assert.Equal(t, "DEPOSIT_REQUIRED", body["error"])
			break
		}
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Less(t, i, 99, "free pool never exhausted")
	}

	resp, body = f.post(t, "/v1/sessions/"+sessionID+"/deposit", map[string]any{
		"userId":       payer.String(),
		"amountTokens": 50,
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// 40 earner words fill exactly one default bucket.
	longText := strings.TrimSpace(strings.Repeat("word ", 40))
	resp, body = f.post(t, "/v1/sessions/"+sessionID+"/messages", map[string]any{
		"authorId": earner.String(),
		"text":     longText,
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["billed"])
	assert.Equal(t, float64(1), body["bucketsBilled"])

	t.Run("transactions listed", func(t *testing.T) {
		resp, body := f.get(t, "/v1/sessions/"+sessionID+"/transactions")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		txs := body["transactions"].([]any)
		// deposit + bucket bill + platform fee + earner credit
		assert.Len(t, txs, 4)
	})

	t.Run("earner wallet credited", func(t *testing.T) {
		resp, body := f.get(t, "/v1/wallets/"+earner.String())
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(7), body["availableBalance"])
	})

	t.Run("close refunds escrow", func(t *testing.T) {
		resp, body := f.post(t, "/v1/sessions/"+sessionID+"/close", map[string]any{}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "CLOSED", body["state"])

		resp, body = f.get(t, "/v1/wallets/"+payer.String())
		require.Equal(t, http.StatusOK, resp.StatusCode)
		// 100 credited, 10 billed, the rest returned.
		assert.Equal(t, float64(90), body["availableBalance"])
	})

	t.Run("message on closed session conflicts", func(t *testing.T) {
		resp, body := f.post(t, "/v1/sessions/"+sessionID+"/messages", map[string]any{
			"authorId": payer.String(),
			"text":     "anyone there",
		}, nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "SESSION_CLOSED", body["error"])
	})
}

func TestCreditRequiresAPIKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("sekrit"), bcrypt.MinCost)
	require.NoError(t, err)
	f := newAPIFixture(t, string(hash))
	userID := uuid.New()
	path := fmt.Sprintf("/v1/wallets/%s/credit", userID)

	resp, body := f.post(t, path, map[string]any{"amountTokens": 10}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", body["error"])

	resp, body = f.post(t, path, map[string]any{"amountTokens": 10},
		map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = f.post(t, path, map[string]any{"amountTokens": 10},
		map[string]string{"X-API-Key": "sekrit"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(10), body["availableBalance"])
}
