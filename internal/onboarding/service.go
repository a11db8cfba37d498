// Package onboarding はオンボーディング完了の書き込み（リレー側）を提供する。
// 呼び出し元のクレデンシャルから特定したユーザーのIdPメタデータに、
// 管理用クレデンシャルを使ってプロフィールと完了フラグを書き込む。
package onboarding

import (
	"context"
	"log/slog"

	"github.com/hitoshi/mealplanner/internal/idp"
	"github.com/hitoshi/mealplanner/internal/model"
	"github.com/hitoshi/mealplanner/internal/security"
)

// 完了処理の結果（メトリクスのラベル値）
const (
	OutcomeSuccess          = "success"
	OutcomeValidationFailed = "validation_failed"
	OutcomeCredentialFailed = "credential_failed"
	OutcomeWriteFailed      = "write_failed"
)

// TokenSource は管理用クレデンシャルの取得元。idp.TokenCache が満たす。
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// MetadataWriter はIdPメタデータの書き込み先。idp.ManagementClient が満たす。
type MetadataWriter interface {
	UpdateAppMetadata(ctx context.Context, accessToken, userID string, meta idp.AppMetadata) error
}

// Recorder は完了処理の結果を記録するメトリクスの抽象。
type Recorder interface {
	RecordOnboardingCompletion(outcome string)
}

// Service はオンボーディング完了のサービス層。
type Service struct {
	tokens    TokenSource
	writer    MetadataWriter
	sanitizer *security.LabelSanitizer
	recorder  Recorder
	logger    *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。recorderとloggerはnilでもよい。
func NewService(tokens TokenSource, writer MetadataWriter, sanitizer *security.LabelSanitizer, recorder Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if sanitizer == nil {
		sanitizer = security.NewLabelSanitizer()
	}
	return &Service{
		tokens:    tokens,
		writer:    writer,
		sanitizer: sanitizer,
		recorder:  recorder,
		logger:    logger,
	}
}

// Complete はsubjectのIdPメタデータにオンボーディング完了を書き込む。
// profileがnilの場合は完了フラグのみを書き込む。
// それ以外はuserIDをsubjectで上書きし、完了フラグを立て、ラベルをサニタイズして検証した上で保存する。
// 保存したプロフィール（フラグのみの場合はnil）を返す。返すエラーは全て*model.APIError。
func (s *Service) Complete(ctx context.Context, subject string, profile *model.UserProfile) (*model.UserProfile, error) {
	if subject == "" {
		return nil, model.NewUnauthorizedError()
	}

	meta := idp.AppMetadata{HasCompletedOnboarding: true}
	if profile != nil {
		p := s.sanitizer.SanitizeProfile(*profile)
		p.UserID = subject
		p.HasCompletedOnboarding = true
		if err := p.Validate(); err != nil {
			s.record(OutcomeValidationFailed)
			s.logger.Warn("オンボーディングのプロフィール検証に失敗しました",
				slog.String("user_id", subject),
				slog.String("error", err.Error()),
			)
			return nil, model.NewValidationError(err.Error())
		}
		meta.Profile = &p
	}

	token, err := s.tokens.Token(ctx)
	if err != nil {
		s.record(OutcomeCredentialFailed)
		s.logger.Error("管理用クレデンシャルの取得に失敗しました",
			slog.String("user_id", subject),
			slog.String("error", err.Error()),
		)
		return nil, model.NewCredentialAcquisitionError()
	}

	if err := s.writer.UpdateAppMetadata(ctx, token, subject, meta); err != nil {
		s.record(OutcomeWriteFailed)
		s.logger.Error("IdPメタデータの書き込みに失敗しました",
			slog.String("user_id", subject),
			slog.String("error", err.Error()),
		)
		return nil, model.NewMetadataWriteError()
	}

	s.record(OutcomeSuccess)
	s.logger.Info("オンボーディング完了を保存しました",
		slog.String("user_id", subject),
		slog.Bool("full_profile", meta.Profile != nil),
	)
	return meta.Profile, nil
}

func (s *Service) record(outcome string) {
	if s.recorder != nil {
		s.recorder.RecordOnboardingCompletion(outcome)
	}
}
