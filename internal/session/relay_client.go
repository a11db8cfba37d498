package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/mealplanner/internal/model"
)

const (
	completeOnboardingPath = "/api/complete-onboarding"
	maxRelayBody           = 64 << 10
)

// RelayClient はバックエンドリレーのHTTPクライアント。
type RelayClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// NewRelayClient はRelayClientの新しいインスタンスを生成する。
func NewRelayClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *RelayClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RelayClient{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type completeRequest struct {
	Profile *model.UserProfile `json:"profile"`
}

type completeResponse struct {
	Success *bool              `json:"success"`
	Profile *model.UserProfile `json:"profile"`
}

type relayErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// CompleteOnboarding はプロフィールをリレーに送信し、リレーが保存したプロフィールを返す。
// profileがnilの場合はボディなしで送信する（完了フラグのみの書き込み）。
// 応答にprofileが無い場合はnilを返す。失敗は全て*CommitErrorで返す。
func (c *RelayClient) CompleteOnboarding(ctx context.Context, accessToken string, profile *model.UserProfile) (*model.UserProfile, error) {
	var body io.Reader
	if profile != nil {
		payload, err := json.Marshal(completeRequest{Profile: profile})
		if err != nil {
			return nil, &CommitError{Kind: KindValidation, Err: fmt.Errorf("プロフィールのシリアライズに失敗しました: %w", err)}
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completeOnboardingPath, body)
	if err != nil {
		return nil, &CommitError{Kind: KindNetwork, Err: fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("リレーへの送信に失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, &CommitError{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRelayBody))
	if err != nil {
		return nil, &CommitError{Kind: KindNetwork, Err: fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("リレーがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, &CommitError{Kind: KindRelay, StatusCode: resp.StatusCode, Message: relayMessage(raw)}
	}

	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var ack completeResponse
	if err := json.Unmarshal(raw, &ack); err != nil {
		return nil, &CommitError{Kind: KindMalformedResponse, StatusCode: resp.StatusCode, Err: err}
	}
	if ack.Success == nil || !*ack.Success {
		return nil, &CommitError{Kind: KindMalformedResponse, StatusCode: resp.StatusCode, Message: "acknowledgement missing success"}
	}
	return ack.Profile, nil
}

// relayMessage はエラーボディ（JSONまたはプレーンテキスト）からメッセージを取り出す。
func relayMessage(raw []byte) string {
	var eb relayErrorBody
	if json.Unmarshal(raw, &eb) == nil {
		switch {
		case eb.Message != "":
			return eb.Message
		case eb.Error != "":
			return eb.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
