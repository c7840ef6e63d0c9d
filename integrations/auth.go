package integrations

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/labelmint/mintflow/workflow"
)

// defaultSignedTTL bounds signed tokens whose config omits a TTL.
const defaultSignedTTL = time.Minute

// applyAuth attaches the configured credentials to an outbound request.
// Signed auth mints a short-lived HS256 token per request; nothing is
// cached, so revoking the secret takes effect immediately.
func applyAuth(req *http.Request, auth *workflow.AuthConfig, now time.Time) error {
	if auth == nil {
		return nil
	}

	switch auth.Type {
	case "", workflow.AuthNone:
		return nil

	case workflow.AuthBearer:
		req.Header.Set("Authorization", "Bearer "+auth.Token)
		return nil

	case workflow.AuthBasic:
		req.SetBasicAuth(auth.Username, auth.Password)
		return nil

	case workflow.AuthSigned:
		token, err := signToken(auth, now)
		if err != nil {
			return fmt.Errorf("sign request token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil

	default:
		return fmt.Errorf("unknown auth type %q", auth.Type)
	}
}

func signToken(auth *workflow.AuthConfig, now time.Time) (string, error) {
	ttl := auth.TTL.Std()
	if ttl <= 0 {
		ttl = defaultSignedTTL
	}
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if auth.Issuer != "" {
		claims["iss"] = auth.Issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(auth.Secret))
}
