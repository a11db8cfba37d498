// Package auth はベアラークレデンシャル（IdP発行のアクセストークン）の検証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/mealplanner/internal/idp"
	"github.com/hitoshi/mealplanner/internal/model"
)

// ErrInvalidToken はトークンの検証に失敗した場合のエラー。
var ErrInvalidToken = errors.New("invalid bearer token")

// VerifierConfig はトークン検証の設定。
type VerifierConfig struct {
	Domain       string        // IdPドメイン。issuerとJWKSの取得先を決める
	Audience     string        // リレーAPIのaudience
	JWKSCacheTTL time.Duration // 0なら6時間
}

// Verifier はRS256署名のアクセストークンを検証する。
// issuer、audience、有効期限を必須とする。
type Verifier struct {
	issuer   string
	audience string
	keys     *JWKSCache
	now      func() time.Time
}

// NewVerifier はVerifierの新しいインスタンスを生成する。
func NewVerifier(cfg VerifierConfig, httpClient *http.Client, logger *slog.Logger) *Verifier {
	base := idp.BaseURL(cfg.Domain)
	return &Verifier{
		issuer:   base + "/",
		audience: cfg.Audience,
		keys:     NewJWKSCache(base+"/.well-known/jwks.json", cfg.JWKSCacheTTL, httpClient, logger),
		now:      time.Now,
	}
}

// Verify はトークンを検証し、呼び出し元のPrincipalを返す。
func (v *Verifier) Verify(ctx context.Context, raw string) (*model.Principal, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)

	claims := &jwt.RegisteredClaims{}
	_, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("missing kid")
		}
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}

	p := &model.Principal{
		Subject:  claims.Subject,
		Audience: []string(claims.Audience),
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}
