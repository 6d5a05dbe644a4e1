package backend

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"

	"github.com/speedrun-hq/cachekeeper/pkg/models"
)

// tokenRefreshSkew renews a session this long before the token expires
const tokenRefreshSkew = 30 * time.Second

type session struct {
	token     string
	expiresAt time.Time // zero when the token carries no exp
}

func (s *session) valid(now time.Time) bool {
	return s != nil && s.token != "" && (s.expiresAt.IsZero() || now.Add(tokenRefreshSkew).Before(s.expiresAt))
}

func (c *Client) token() string {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	if c.auth == nil {
		return ""
	}
	return c.auth.token
}

// Authenticated reports whether a non-expired session is held
func (c *Client) Authenticated() bool {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.auth.valid(time.Now())
}

// Login signs the backend's nonce with key (EIP-191 personal message) and stores
// the returned session token.
func (c *Client) Login(ctx context.Context, key *ecdsa.PrivateKey) error {
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	var nonce models.AuthNonce
	if err := c.call(ctx, http.MethodPost, "/auth/nonce", nil, map[string]string{"address": address}, &nonce, ""); err != nil {
		return fmt.Errorf("failed to request login nonce: %w", err)
	}
	message := nonce.Message
	if message == "" {
		message = nonce.Nonce
	}

	signature, err := SignMessage(key, message)
	if err != nil {
		return err
	}

	var resp models.LoginResponse
	req := models.LoginRequest{Address: address, Nonce: nonce.Nonce, Signature: signature}
	if err := c.call(ctx, http.MethodPost, "/auth/login", nil, req, &resp, ""); err != nil {
		return fmt.Errorf("failed to log in: %w", err)
	}
	if resp.Token == "" {
		return fmt.Errorf("%w: login returned no token", ErrUnauthorized)
	}

	expiresAt, err := tokenExpiry(resp.Token)
	if err != nil {
		c.logger.Notice("Login token has unreadable claims, reusing until rejected: %v", err)
	}

	c.authMu.Lock()
	c.auth = &session{token: resp.Token, expiresAt: expiresAt}
	c.authMu.Unlock()

	c.logger.Info("Logged in to backend as %s", address)
	return nil
}

// EnsureLogin logs in again when the current session is missing or about to expire
func (c *Client) EnsureLogin(ctx context.Context, key *ecdsa.PrivateKey) error {
	if c.Authenticated() {
		return nil
	}
	c.loginMu.Lock()
	defer c.loginMu.Unlock()
	if c.Authenticated() {
		return nil
	}
	return c.Login(ctx, key)
}

// relogin replaces a session the backend rejected. Concurrent callers holding the
// same stale token share one login.
func (c *Client) relogin(ctx context.Context, stale string) error {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()
	if current := c.token(); current != "" && current != stale && c.Authenticated() {
		return nil
	}
	c.logger.Info("Backend rejected the session token, logging in again")
	return c.Login(ctx, c.signer)
}

// SignMessage returns the hex EIP-191 signature of message with V in {27, 28}
func SignMessage(key *ecdsa.PrivateKey, message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign login message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// tokenExpiry reads exp without verifying the signature; the backend verifies it.
func tokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, err
	}
	return exp.Time, nil
}
