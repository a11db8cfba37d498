package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// ManagementClient はIdP管理APIのクライアント。
// 管理用クレデンシャルは呼び出し元（TokenCache経由）が用意する。
type ManagementClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	recorder   Recorder
	baseURL    string // テスト用に差し替え可能
}

// NewManagementClient はManagementClientの新しいインスタンスを生成する。
func NewManagementClient(domain string, httpClient *http.Client, recorder Recorder, logger *slog.Logger) *ManagementClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ManagementClient{
		httpClient: httpClient,
		logger:     logger,
		recorder:   recorder,
		baseURL:    BaseURL(domain),
	}
}

type updateUserRequest struct {
	AppMetadata AppMetadata `json:"app_metadata"`
}

// UpdateAppMetadata はユーザーのapp_metadataをPATCHで更新する。
// 同じ内容での再実行は同じ結果になる（メタデータキーは後勝ち）。
// 2xx以外は*StatusErrorを返す。
func (c *ManagementClient) UpdateAppMetadata(ctx context.Context, accessToken, userID string, meta AppMetadata) error {
	payload, err := json.Marshal(updateUserRequest{AppMetadata: meta})
	if err != nil {
		return fmt.Errorf("メタデータのシリアライズに失敗しました: %w", err)
	}

	endpoint := c.baseURL + "/api/v2/users/" + url.PathEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.recorder.ObserveIdPLatency("metadata_write", time.Since(start))
	if err != nil {
		c.recorder.RecordMetadataWrite(false)
		c.logger.Error("IdP管理APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("user_id", userID),
		)
		return fmt.Errorf("IdP管理APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.recorder.RecordMetadataWrite(false)
		c.logger.Error("IdP管理APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("user_id", userID),
		)
		return &StatusError{Op: "metadata_write", StatusCode: resp.StatusCode, Body: truncate(body)}
	}

	// レスポンスボディは使用しないが、コネクション再利用のため読み捨てる
	_, _ = io.Copy(io.Discard, resp.Body)
	c.recorder.RecordMetadataWrite(true)
	return nil
}
