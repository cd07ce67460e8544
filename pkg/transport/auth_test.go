package transport

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return &Server{jwtSecret: []byte("test-secret"), adminPassword: "hunter2"}
}

func TestIssueTokenThenParseTokenRoundTrips(t *testing.T) {
	s := newTestServer(t)
	tok, err := s.issueToken("admin", roleAdmin)
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	c, err := s.parseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "admin", c.Username)
	assert.Equal(t, roleAdmin, c.Role)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	s := newTestServer(t)
	_, err := s.parseToken("not-a-jwt")
	assert.Error(t, err)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	s := newTestServer(t)
	tok, err := s.issueToken("admin", roleAdmin)
	require.NoError(t, err)

	other := newTestServer(t)
	other.jwtSecret = []byte("a-different-secret")
	_, err = other.parseToken(tok)
	assert.Error(t, err)
}

func TestRequireAdminErr(t *testing.T) {
	assert.Error(t, requireAdminErr(nil))
	assert.Error(t, requireAdminErr(&claims{Role: "user"}))
	assert.NoError(t, requireAdminErr(&claims{Role: roleAdmin}))
}

func TestAuthenticateWithNoHeaderIsAnonymous(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/", nil)
	c, err := s.authenticate(req)
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestAuthenticateRejectsMalformedHeader(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Basic deadbeef")
	_, err := s.authenticate(req)
	assert.Error(t, err)
}

func TestAuthenticateAcceptsValidBearerToken(t *testing.T) {
	s := newTestServer(t)
	tok, err := s.issueToken("admin", roleAdmin)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	c, err := s.authenticate(req)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, roleAdmin, c.Role)
}

func TestAuthorizeCommandWithNoTokenIsAnonymous(t *testing.T) {
	s := newTestServer(t)
	c, err := s.authorizeCommand(&Command{Op: "ListDatabases"})
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestAuthorizeCommandRejectsBadToken(t *testing.T) {
	s := newTestServer(t)
	_, err := s.authorizeCommand(&Command{Op: "CreateDatabase", Token: "garbage"})
	assert.Error(t, err)
}

func TestHandleLoginRejectsWrongPassword(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("POST", "/auth/login", nil)
	w := httptest.NewRecorder()

	// decodeJSONBody tolerates a nil-bodied request as an empty body,
	// which fails the username/password check below.
	s.handleLogin(w, req)
	assert.Equal(t, 401, w.Code)
}
