package transport

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/cuemby/solidb/pkg/types"
)

// roleAdmin is the only role claim spec §6 names ("role claim admin
// unlocks administrative routes"); every other authenticated caller is
// treated as a plain user.
const roleAdmin = "admin"

const tokenTTL = 24 * time.Hour

// claims is the JWT payload a bearer token carries.
type claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func (s *Server) issueToken(username, role string) (string, error) {
	now := time.Now()
	c := claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			Subject:   username,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(s.jwtSecret)
}

func (s *Server) parseToken(tokenString string) (*claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, types.NewError(types.ErrUnauthenticated, "invalid token: %v", err)
	}
	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, types.NewError(types.ErrUnauthenticated, "invalid token")
	}
	return c, nil
}

// loginRequest/loginResponse are the POST /auth/login contract (spec
// §6).
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin authenticates against the single configured admin account
// (SOLIDB_ADMIN_PASSWORD, spec §6 environment variables); there is no
// multi-user store in this pass, matching the one `admin` role claim the
// spec defines.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	format := formatFromRequest(r)
	var req loginRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, format, http.StatusBadRequest, string(types.ErrInvalidArgument), err.Error())
		return
	}
	if req.Username != "admin" || req.Password == "" || req.Password != s.adminPassword {
		writeError(w, format, http.StatusUnauthorized, string(types.ErrUnauthenticated), "invalid credentials")
		return
	}
	token, err := s.issueToken(req.Username, roleAdmin)
	if err != nil {
		writeError(w, format, http.StatusInternalServerError, string(types.ErrInternal), err.Error())
		return
	}
	writeResponse(w, format, http.StatusOK, map[string]any{"token": token})
}

// authenticate extracts and validates the bearer token from an HTTP
// request, if any. A request with no Authorization header is allowed
// through as anonymous; route handlers that require admin call
// requireAdmin themselves.
func (s *Server) authenticate(r *http.Request) (*claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, nil
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil, types.NewError(types.ErrUnauthenticated, "malformed Authorization header")
	}
	return s.parseToken(strings.TrimPrefix(header, prefix))
}

func requireAdminErr(c *claims) error {
	if c == nil || c.Role != roleAdmin {
		return types.NewError(types.ErrForbidden, "admin role required")
	}
	return nil
}

// authorizeCommand validates a binary-protocol Command's bearer token,
// mirroring authenticate/requireAdmin for the HTTP path.
func (s *Server) authorizeCommand(cmd *Command) (*claims, error) {
	if cmd.Token == "" {
		return nil, nil
	}
	c, err := s.parseToken(cmd.Token)
	if err != nil {
		return nil, &types.Error{Kind: types.ErrorKind(protoAuthError), Message: err.Error()}
	}
	return c, nil
}
