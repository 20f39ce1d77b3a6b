package wineapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type tokenKey struct{}

// WithToken makes calls made with ctx authenticate as token instead of the
// client's default.
func WithToken(ctx context.Context, token string) context.Context {
	token = strings.TrimSpace(token)
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey{}, token)
}

// Token returns the token attached by WithToken, if any.
func Token(ctx context.Context) string { return tokenFrom(ctx, "") }

func tokenFrom(ctx context.Context, fallback string) string {
	if s, ok := ctx.Value(tokenKey{}).(string); ok && s != "" {
		return s
	}
	return fallback
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

type Session struct {
	Token   string
	Expires time.Time
}

func (s Session) Expired(now time.Time) bool {
	return s.Token == "" || (!s.Expires.IsZero() && !now.Before(s.Expires))
}

// TokenExpiry reads the exp claim without verifying the signature; the API is
// the party that verifies.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, errors.New("token has no exp claim")
	}
	return exp.Time, nil
}
