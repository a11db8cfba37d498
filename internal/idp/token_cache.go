package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrMalformedTokenResponse はトークンエンドポイントのレスポンスが期待した形式でない場合のエラー。
var ErrMalformedTokenResponse = errors.New("idp token: malformed response")

// defaultFetchTimeout はトークン取得1回あたりの上限時間。
const defaultFetchTimeout = 10 * time.Second

// TokenCacheConfig は管理用クレデンシャル取得の設定。
type TokenCacheConfig struct {
	Domain       string
	ClientID     string
	ClientSecret string
	Audience     string        // 管理APIのaudience
	FetchTimeout time.Duration // 0なら10秒
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Audience     string `json:"audience"`
	GrantType    string `json:"grant_type"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenCache はIdP管理APIのアクセストークンをプロセス内で共有するキャッシュ。
// キャッシュ済みトークンが有効期限前なら外部呼び出しを行わない。
// 期限切れまたは未取得の場合、同時に来た呼び出しは1回のトークン取得に集約される。
// 取得に失敗した場合はキャッシュを変更しない。
type TokenCache struct {
	cfg        TokenCacheConfig
	httpClient *http.Client
	logger     *slog.Logger
	recorder   Recorder
	endpoint   string // テスト用にエンドポイントを差し替え可能
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

// NewTokenCache はTokenCacheの新しいインスタンスを生成する。
// recorderとloggerはnilでもよい。
func NewTokenCache(cfg TokenCacheConfig, httpClient *http.Client, recorder Recorder, logger *slog.Logger) *TokenCache {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	return &TokenCache{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger,
		recorder:   recorder,
		endpoint:   BaseURL(cfg.Domain) + "/oauth/token",
		now:        time.Now,
	}
}

// Token は有効な管理用アクセストークンを返す。
// キャッシュが空または期限切れ（現在時刻との厳密比較）の場合のみ取得する。
// ctxのキャンセルは待機中の呼び出し元だけを終了させ、進行中の取得は他の待機者のために継続する。
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		c.recorder.RecordTokenCacheHit()
		return tok, nil
	}

	ch := c.group.DoChan("token", func() (interface{}, error) {
		// 直前に完了した取得の結果があればそれを使う
		if tok, ok := c.cached(); ok {
			return tok, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FetchTimeout)
		defer cancel()
		return c.refresh(fetchCtx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.recorder.RecordTokenCoalesced()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, true
	}
	return "", false
}

func (c *TokenCache) refresh(ctx context.Context) (string, error) {
	start := time.Now()
	tok, expiresIn, err := c.fetch(ctx)
	c.recorder.ObserveIdPLatency("token", time.Since(start))
	if err != nil {
		c.recorder.RecordTokenFetch(false)
		c.logger.Error("管理用トークンの取得に失敗しました",
			slog.String("error", err.Error()),
			slog.String("audience", c.cfg.Audience),
		)
		return "", err
	}
	c.recorder.RecordTokenFetch(true)

	c.mu.Lock()
	c.token = tok
	c.expiresAt = c.now().Add(expiresIn)
	c.mu.Unlock()

	c.logger.Info("管理用トークンを取得しました",
		slog.Float64("expires_in_sec", expiresIn.Seconds()),
	)
	return tok, nil
}

func (c *TokenCache) fetch(ctx context.Context) (string, time.Duration, error) {
	payload, err := json.Marshal(tokenRequest{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Audience:     c.cfg.Audience,
		GrantType:    "client_credentials",
	})
	if err != nil {
		return "", 0, fmt.Errorf("トークンリクエストの生成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", 0, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("トークンエンドポイントの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", 0, &StatusError{Op: "token", StatusCode: resp.StatusCode, Body: truncate(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrMalformedTokenResponse, err)
	}
	if tr.AccessToken == "" || tr.ExpiresIn <= 0 {
		return "", 0, fmt.Errorf("%w: access_token or expires_in missing", ErrMalformedTokenResponse)
	}

	return tr.AccessToken, time.Duration(tr.ExpiresIn) * time.Second, nil
}
