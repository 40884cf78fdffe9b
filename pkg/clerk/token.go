package clerk

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// SubjectFromJWT recovers the subject claim from a compact JWT without
// verifying it: the broker only needs an opaque user id to tag upstream
// requests with. A token that cannot be decoded still counts as valid —
// the subject is synthesized instead.
func SubjectFromJWT(token string) string {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return uuid.NewString()
	}

	payload := parts[1]
	if m := len(payload) % 4; m != 0 {
		payload += strings.Repeat("=", 4-m)
	}

	decoded, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return uuid.NewString()
	}

	var claims struct {
		Sub string `json:"sub"`
	}
	if err := json.Unmarshal(decoded, &claims); err != nil || claims.Sub == "" {
		return uuid.NewString()
	}
	return claims.Sub
}
