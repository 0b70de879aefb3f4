package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioTRaX/Growen-sub001/pkg/contracts"
)

const secret = "test-session-secret"

func TestChain_AnonymousWhenNothingMatches(t *testing.T) {
	chain := NewProviderChain(NewSessionTokenProvider(secret), NewTrustedHeaderProvider(true, "proxy"))
	id, err := chain.Identify(context.Background(), httptest.NewRequest(http.MethodGet, "/ws/chat", nil))
	require.NoError(t, err)
	assert.Equal(t, contracts.RoleGuest, id.Role)
	assert.Equal(t, "anonymous", id.Provider)
	assert.False(t, id.Elevated())
	assert.Equal(t, []string{"session_jwt", "trusted_header"}, chain.ListProviders())
}

func TestSessionToken_CookieAndBearer(t *testing.T) {
	tok, err := IssueSessionToken(secret, "u-7", "admin", "sess-1", time.Hour)
	require.NoError(t, err)
	chain := NewProviderChain(NewSessionTokenProvider(secret))

	r := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: tok})
	id, err := chain.Identify(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "u-7", id.Subject)
	assert.Equal(t, "sess-1", id.SessionID)
	assert.True(t, id.Elevated())

	r = httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	id, err = chain.Identify(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "session_jwt", id.Provider)
}

func TestSessionToken_Rejections(t *testing.T) {
	p := NewSessionTokenProvider(secret)

	wrong, _ := IssueSessionToken("other-secret", "u-7", "admin", "", time.Hour)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+wrong)
	_, err := p.Identify(context.Background(), r)
	assert.Error(t, err)

	expired, _ := IssueSessionToken(secret, "u-7", "cliente", "", time.Minute)
	p.now = func() time.Time { return time.Now().Add(time.Hour) }
	r.Header.Set("Authorization", "Bearer "+expired)
	_, err = p.Identify(context.Background(), r)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	p.now = time.Now
	noSub, _ := IssueSessionToken(secret, "", "cliente", "", time.Hour)
	r.Header.Set("Authorization", "Bearer "+noSub)
	_, err = p.Identify(context.Background(), r)
	assert.Error(t, err)
}

func TestSessionToken_UnknownRoleIsClient(t *testing.T) {
	tok, _ := IssueSessionToken(secret, "u-8", "superuser", "", time.Hour)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	id, err := NewSessionTokenProvider(secret).Identify(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, contracts.RoleClient, id.Role)
}

func TestSessionToken_DisabledWithoutSecret(t *testing.T) {
	tok, _ := IssueSessionToken(secret, "u-7", "admin", "", time.Hour)
	chain := NewProviderChain(NewSessionTokenProvider(""))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	id, err := chain.Identify(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, contracts.RoleGuest, id.Role)
}

func TestTrustedHeaders(t *testing.T) {
	p := NewTrustedHeaderProvider(true, "proxy-secret")
	require.True(t, p.Enabled())

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderUserRole, "colaborador")
	r.Header.Set(HeaderUserID, "42")
	r.Header.Set(HeaderProxySecret, "proxy-secret")
	id, err := p.Identify(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "42", id.Subject)
	assert.True(t, id.Elevated())

	r.Header.Set(HeaderProxySecret, "forged")
	_, err = p.Identify(context.Background(), r)
	assert.Error(t, err)

	assert.False(t, NewTrustedHeaderProvider(true, "").Enabled())
	assert.False(t, NewTrustedHeaderProvider(false, "proxy-secret").Enabled())
}
