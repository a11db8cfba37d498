package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrKeyNotFound はJWKSに指定のkidが存在しない場合のエラー。
var ErrKeyNotFound = errors.New("jwks: key not found")

const (
	defaultJWKSTTL = 6 * time.Hour
	// minUnknownKidRefresh は未知のkidによる再取得の最小間隔。
	minUnknownKidRefresh = time.Minute
)

// JWKSCache はIdPの署名鍵セット（RSA）をTTL付きでキャッシュする。
// 未知のkidを受け取った場合は鍵のローテーションとみなして再取得する。
type JWKSCache struct {
	httpClient *http.Client
	logger     *slog.Logger
	url        string
	ttl        time.Duration
	now        func() time.Time

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time

	group singleflight.Group
}

// NewJWKSCache はJWKSCacheの新しいインスタンスを生成する。ttlが0以下なら6時間。
func NewJWKSCache(jwksURL string, ttl time.Duration, httpClient *http.Client, logger *slog.Logger) *JWKSCache {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = defaultJWKSTTL
	}
	return &JWKSCache{
		httpClient: httpClient,
		logger:     logger,
		url:        jwksURL,
		ttl:        ttl,
		now:        time.Now,
		keys:       map[string]*rsa.PublicKey{},
	}
}

// Key はkidに対応する公開鍵を返す。
func (j *JWKSCache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	j.mu.RLock()
	key := j.keys[kid]
	age := j.now().Sub(j.fetchedAt)
	fetched := !j.fetchedAt.IsZero()
	j.mu.RUnlock()

	stale := !fetched || age > j.ttl
	if key != nil && !stale {
		return key, nil
	}
	// 未知のkidで短時間に再取得を繰り返さない
	if key == nil && fetched && !stale && age < minUnknownKidRefresh {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}

	_, err, _ := j.group.Do("jwks", func() (interface{}, error) {
		return nil, j.refresh(ctx)
	})
	if err != nil {
		j.logger.Warn("JWKSの取得に失敗しました",
			slog.String("error", err.Error()),
		)
		// 取得失敗時はキャッシュ済みの鍵があればそれを使う
		if key != nil {
			return key, nil
		}
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	key = j.keys[kid]
	if key == nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (j *JWKSCache) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.url, nil)
	if err != nil {
		return fmt.Errorf("JWKSリクエストの作成に失敗しました: %w", err)
	}
	res, err := j.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("JWKSの取得に失敗しました: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("JWKSの取得に失敗しました: %s", res.Status)
	}

	var set jwkSet
	if err := json.NewDecoder(res.Body).Decode(&set); err != nil {
		return fmt.Errorf("JWKSのパースに失敗しました: %w", err)
	}

	next := map[string]*rsa.PublicKey{}
	for _, k := range set.Keys {
		if strings.TrimSpace(k.Kid) == "" || k.Kty != "RSA" {
			continue
		}
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		pub, err := rsaFromModExp(k.N, k.E)
		if err != nil {
			continue
		}
		next[k.Kid] = pub
	}
	if len(next) == 0 {
		return errors.New("JWKSに使用可能な鍵がありません")
	}

	j.mu.Lock()
	j.keys = next
	j.fetchedAt = j.now()
	j.mu.Unlock()
	return nil
}

func rsaFromModExp(nB64, eB64 string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, err
	}

	n := new(big.Int).SetBytes(nb)
	e := 0
	for _, b := range eb {
		e = e<<8 + int(b)
	}
	if e == 0 {
		return nil, fmt.Errorf("invalid exponent")
	}
	return &rsa.PublicKey{N: n, E: e}, nil
}
