package session

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// ErrNoAccessToken はトークンソースが有効なトークンを返さなかった場合のエラー。
var ErrNoAccessToken = errors.New("no valid access token")

// AccessTokenSource はリレー用（リレーAPIのaudience）のアクセストークンの取得元。
// 管理APIのクレデンシャルとは別物で、混同してはならない。
type AccessTokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// OAuth2TokenSource はoauth2.TokenSourceをAccessTokenSourceに適合させる。
// 有効期限内のトークンは再利用される（oauth2.ReuseTokenSource）。
type OAuth2TokenSource struct {
	src oauth2.TokenSource
}

// NewOAuth2TokenSource はOAuth2TokenSourceの新しいインスタンスを生成する。
func NewOAuth2TokenSource(src oauth2.TokenSource) *OAuth2TokenSource {
	return &OAuth2TokenSource{src: oauth2.ReuseTokenSource(nil, src)}
}

// AccessToken はアクセストークンを返す。
func (s *OAuth2TokenSource) AccessToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tok, err := s.src.Token()
	if err != nil {
		return "", fmt.Errorf("アクセストークンの取得に失敗しました: %w", err)
	}
	if !tok.Valid() {
		return "", ErrNoAccessToken
	}
	return tok.AccessToken, nil
}
