package ingress

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	gerrors "github.com/glyphmesh/glyphmesh/core/errors"
)

// adminClaims is deliberately narrower than the teacher's gateway/auth
// Claims: glyphmesh has exactly one privileged role, so there is no
// scope/issuer/audience machinery to carry (SPEC_FULL.md §6.8).
type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueAdminToken signs an admin-role bearer token with secret, valid for
// ttl. Operators mint these out-of-band (a CLI, a deploy script); glyphmesh
// itself never issues one over HTTP.
func IssueAdminToken(secret string, ttl time.Duration, now time.Time) (string, error) {
	claims := adminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// adminAuth enforces spec.md §6.6's "admin-only endpoints check a
// header-provided admin credential" by validating a signed bearer token
// carrying role=admin, modeled on gateway/middleware/auth.go's
// parse-then-validate-claims shape but scoped to one role.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, gerrors.New(gerrors.KindUnauthorized, "missing admin credential"), nil)
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		var claims adminClaims
		token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, gerrors.New(gerrors.KindUnauthorized, "unexpected signing method")
			}
			return []byte(s.cfg.AdminTokenSecret), nil
		})
		if err != nil || !token.Valid || claims.Role != "admin" {
			writeError(w, gerrors.New(gerrors.KindUnauthorized, "invalid admin credential"), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
