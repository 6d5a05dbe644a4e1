package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/cachekeeper/pkg/circuitbreaker"
	"github.com/speedrun-hq/cachekeeper/pkg/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts Options) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL, opts, nil)
}

func TestListContracts_ResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "bare array", body: `[{"id":"1","address":"0xabc"},{"id":"2"}]`, want: 2},
		{name: "named wrapper", body: `{"contracts":[{"id":"1"}],"total_count":1}`, want: 1},
		{name: "data wrapper", body: `{"data":[{"id":"1"},{"id":"2"},{"id":"3"}]}`, want: 3},
		{name: "empty", body: `[]`, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/contracts", r.URL.Path)
				assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
				_, _ = w.Write([]byte(tt.body))
			}, Options{})

			contracts, err := client.ListContracts(context.Background())
			require.NoError(t, err)
			assert.Len(t, contracts, tt.want)
		})
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		target error
	}{
		{name: "not found", status: http.StatusNotFound, target: ErrNotFound},
		{name: "unauthorized", status: http.StatusUnauthorized, target: ErrUnauthorized},
		{name: "server error", status: http.StatusBadGateway, target: ErrServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}, Options{})

			_, err := client.GetContract(context.Background(), "c1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestClient_BadRequestIsAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"name too long"}`))
	}, Options{})

	_, err := client.UpdateContractName(context.Background(), "c1", strings.Repeat("x", 500))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "name too long", apiErr.Message)
	assert.NotErrorIs(t, err, ErrServiceUnavailable)
}

func TestClient_UnreachableIsServiceUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := New(url, Options{}, nil)
	_, err := client.ListContracts(context.Background())
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestClient_CircuitBreakerShortCircuits(t *testing.T) {
	var hits int32
	breaker := circuitbreaker.New("backend-test", circuitbreaker.Config{
		Enabled: true, Threshold: 2, Window: time.Minute, ResetTimeout: time.Minute,
	}, nil)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, Options{Breaker: breaker})

	for i := 0; i < 4; i++ {
		_, err := client.ListContracts(context.Background())
		assert.ErrorIs(t, err, ErrServiceUnavailable)
	}

	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.True(t, breaker.IsOpen())
}

func TestClient_NotFoundDoesNotTripBreaker(t *testing.T) {
	breaker := circuitbreaker.New("backend-404", circuitbreaker.Config{
		Enabled: true, Threshold: 1, Window: time.Minute, ResetTimeout: time.Minute,
	}, nil)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, Options{Breaker: breaker})

	_, err := client.GetContract(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, breaker.IsOpen())
}

func TestClient_RecordBid(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/contracts/c1/bids", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req models.RecordBidRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "0xabc", req.TxHash)
		assert.Equal(t, "1000", req.Amount)

		_ = json.NewEncoder(w).Encode(models.Bid{ID: "b1", TxHash: req.TxHash, Amount: req.Amount})
	}, Options{})

	bid, err := client.RecordBid(context.Background(), "c1", models.RecordBidRequest{TxHash: "0xabc", Amount: "1000"})
	require.NoError(t, err)
	assert.Equal(t, "b1", bid.ID)
}

func TestClient_ListEventsQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "50", q.Get("page_size"))
		assert.Equal(t, "block_number", q.Get("sort_by"))
		assert.Equal(t, "desc", q.Get("sort_order"))
		assert.Equal(t, "InsertBid", q.Get("event_name"))
		assert.Empty(t, q.Get("contract_address"))

		_, _ = w.Write([]byte(`{"events":[{"id":"e1","event_name":"InsertBid"}],"page":2,"page_size":50,"total_count":51,"total_pages":2}`))
	}, Options{})

	page, err := client.ListEvents(context.Background(), models.EventQuery{
		Page: 2, PageSize: 50, SortBy: "block_number", SortOrder: "desc", EventName: "InsertBid",
	})
	require.NoError(t, err)
	assert.Len(t, page.Events, 1)
	assert.Equal(t, 51, page.TotalCount)
}

func TestClient_AlertPreferences(t *testing.T) {
	var saved models.AlertPreferences
	var tested string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/api/v1/alerts/preferences":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&saved))
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/alerts/test":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			tested = body["channel"]
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, Options{})

	prefs := &models.AlertPreferences{Telegram: &models.ChannelSetting{Enabled: true, Destination: "@x"}}
	require.NoError(t, client.SaveAlertPreferences(context.Background(), prefs))
	require.NoError(t, client.SendTestAlert(context.Background(), models.ChannelTelegram))

	require.NotNil(t, saved.Telegram)
	assert.Equal(t, "@x", saved.Telegram.Destination)
	assert.Equal(t, "telegram", tested)
}

func TestClient_Login(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey)

	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": address.Hex(),
		"exp": expiry.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	const message = "Sign in to cachekeeper: nonce-123"
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/nonce":
			_ = json.NewEncoder(w).Encode(models.AuthNonce{Nonce: "nonce-123", Message: message})
		case "/api/v1/auth/login":
			var req models.LoginRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			sig, err := hexutil.Decode(req.Signature)
			require.NoError(t, err)
			require.Len(t, sig, 65)
			sig[64] -= 27
			pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
			require.NoError(t, err)
			assert.Equal(t, address, crypto.PubkeyToAddress(*pub))

			_ = json.NewEncoder(w).Encode(models.LoginResponse{Token: token})
		case "/api/v1/contracts":
			assert.Equal(t, "Bearer "+token, r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`[]`))
		}
	}, Options{})

	assert.False(t, client.Authenticated())
	require.NoError(t, client.Login(context.Background(), key))
	assert.True(t, client.Authenticated())

	_, err = client.ListContracts(context.Background())
	require.NoError(t, err)

	client.authMu.Lock()
	assert.True(t, expiry.Equal(client.auth.expiresAt))
	client.authMu.Unlock()
}

func TestSession_Valid(t *testing.T) {
	now := time.Now()
	assert.False(t, (*session)(nil).valid(now))
	assert.True(t, (&session{token: "t"}).valid(now))
	assert.True(t, (&session{token: "t", expiresAt: now.Add(time.Hour)}).valid(now))
	assert.False(t, (&session{token: "t", expiresAt: now.Add(10 * time.Second)}).valid(now))
}

func signToken(t *testing.T, subject string, expiry time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": subject}
	if !expiry.IsZero() {
		claims["exp"] = expiry.Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

// authServer issues tokens[i] on the i-th login and records the Authorization
// header seen on /contracts
type authServer struct {
	t        *testing.T
	tokens   []string
	logins   int32
	rejected map[string]bool

	lastAuth atomic.Value
}

func (s *authServer) handle(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/auth/nonce":
		_ = json.NewEncoder(w).Encode(models.AuthNonce{Nonce: "n"})
	case "/api/v1/auth/login":
		i := atomic.AddInt32(&s.logins, 1) - 1
		require.Less(s.t, int(i), len(s.tokens))
		_ = json.NewEncoder(w).Encode(models.LoginResponse{Token: s.tokens[i]})
	case "/api/v1/contracts":
		header := r.Header.Get("Authorization")
		s.lastAuth.Store(header)
		if s.rejected[strings.TrimPrefix(header, "Bearer ")] {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"token expired"}`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}
}

func TestClient_RenewsExpiringSession(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	short := signToken(t, "first", time.Now().Add(10*time.Second))
	long := signToken(t, "second", time.Now().Add(time.Hour))
	srv := &authServer{t: t, tokens: []string{short, long}}
	client := newTestClient(t, srv.handle, Options{Signer: key})

	_, err = client.ListContracts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&srv.logins))
	assert.Equal(t, "Bearer "+short, srv.lastAuth.Load())

	// the first token is inside the refresh skew, so the next request logs in again
	_, err = client.ListContracts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&srv.logins))
	assert.Equal(t, "Bearer "+long, srv.lastAuth.Load())

	_, err = client.ListContracts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&srv.logins))
}

func TestClient_ReloginOnUnauthorized(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	revoked := signToken(t, "revoked", time.Time{})
	fresh := signToken(t, "fresh", time.Time{})
	srv := &authServer{t: t, tokens: []string{revoked, fresh}, rejected: map[string]bool{revoked: true}}
	client := newTestClient(t, srv.handle, Options{Signer: key})

	_, err = client.ListContracts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&srv.logins))
	assert.Equal(t, "Bearer "+fresh, srv.lastAuth.Load())
}

func TestClient_UnauthorizedWithoutSigner(t *testing.T) {
	srv := &authServer{t: t, rejected: map[string]bool{"": true}}
	client := newTestClient(t, srv.handle, Options{})

	_, err := client.ListContracts(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(0), atomic.LoadInt32(&srv.logins))
}
