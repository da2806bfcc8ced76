package widget

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TokenIssuer mints and validates the short-lived session tokens the widget
// presents when opening its WebSocket.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	logger zerolog.Logger
}

// NewTokenIssuer creates a token issuer.
func NewTokenIssuer(secret string, ttl time.Duration, logger zerolog.Logger) *TokenIssuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		logger: logger.With().Str("component", "widget-token").Logger(),
	}
}

// Issue mints a token bound to a fresh session ID.
func (t *TokenIssuer) Issue() (token string, sessionID string, err error) {
	sessionID = uuid.New().String()

	claims := jwt.MapClaims{
		"sid": sessionID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(t.ttl).Unix(),
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	return token, sessionID, err
}

// Validate parses a token and returns its session ID.
func (t *TokenIssuer) Validate(tokenString string) (string, bool) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return "", false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}
	sessionID, ok := claims["sid"].(string)
	if !ok {
		return "", false
	}
	return sessionID, true
}

// HandleToken is the POST /widget/token endpoint.
func (t *TokenIssuer) HandleToken(w http.ResponseWriter, r *http.Request) {
	token, sessionID, err := t.Issue()
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to mint session token")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	t.logger.Debug().Str("session", sessionID).Msg("Session token issued")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(t.ttl.Seconds()),
	})
}

// bearerToken extracts a token from the Authorization header or, for
// WebSocket upgrades where headers are awkward, the access_token query
// parameter.
func bearerToken(r *http.Request) string {
	if raw := r.URL.Query().Get("access_token"); raw != "" {
		return raw
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
