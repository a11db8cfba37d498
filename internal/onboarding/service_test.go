package onboarding

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/hitoshi/mealplanner/internal/idp"
	"github.com/hitoshi/mealplanner/internal/model"
)

// --- モック ---

type mockTokenSource struct {
	tokenFn func(ctx context.Context) (string, error)
	calls   int
}

func (m *mockTokenSource) Token(ctx context.Context) (string, error) {
	m.calls++
	return m.tokenFn(ctx)
}

type mockWriter struct {
	updateFn func(ctx context.Context, accessToken, userID string, meta idp.AppMetadata) error
	calls    int
}

func (m *mockWriter) UpdateAppMetadata(ctx context.Context, accessToken, userID string, meta idp.AppMetadata) error {
	m.calls++
	return m.updateFn(ctx, accessToken, userID, meta)
}

type mockRecorder struct {
	outcomes []string
}

func (m *mockRecorder) RecordOnboardingCompletion(outcome string) {
	m.outcomes = append(m.outcomes, outcome)
}

func newTestService(tokens *mockTokenSource, writer *mockWriter, rec *mockRecorder) *Service {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return NewService(tokens, writer, nil, rec, logger)
}

func okTokens() *mockTokenSource {
	return &mockTokenSource{tokenFn: func(ctx context.Context) (string, error) { return "mgmt-token", nil }}
}

func completedProfile() *model.UserProfile {
	p := model.DefaultProfile()
	p.Goals = model.NewLabelSet("eat-healthy")
	p.FavoriteIngredients = model.NewLabelSet("Chicken")
	return &p
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIError を期待したが %T: %v", err, err)
	}
	if apiErr.Code != code {
		t.Errorf("Code = %q, want %q", apiErr.Code, code)
	}
}

// --- テスト ---

func TestService_Complete_WritesFullProfile(t *testing.T) {
	var got idp.AppMetadata
	var gotUser, gotToken string
	writer := &mockWriter{updateFn: func(ctx context.Context, accessToken, userID string, meta idp.AppMetadata) error {
		gotToken, gotUser, got = accessToken, userID, meta
		return nil
	}}
	rec := &mockRecorder{}
	svc := newTestService(okTokens(), writer, rec)

	p := completedProfile()
	p.UserID = "spoofed-user"
	p.HasCompletedOnboarding = false
	p.FavoriteStores = model.LabelSet{"<b>Aldi</b>"}

	stored, err := svc.Complete(context.Background(), "auth0|user-1", p)
	if err != nil {
		t.Fatalf("Complete() がエラーを返した: %v", err)
	}

	if gotUser != "auth0|user-1" || gotToken != "mgmt-token" {
		t.Errorf("書き込み先 = %q (token %q)", gotUser, gotToken)
	}
	if !got.HasCompletedOnboarding || got.Profile == nil {
		t.Fatalf("メタデータ = %+v", got)
	}
	if got.Profile.UserID != "auth0|user-1" {
		t.Errorf("profile.userId はクレデンシャルのsubjectで上書きされるべき: %q", got.Profile.UserID)
	}
	if !got.Profile.HasCompletedOnboarding {
		t.Error("profile.hasCompletedOnboarding は true に強制されるべき")
	}
	if got.Profile.FavoriteStores[0] != "Aldi" {
		t.Errorf("ラベルがサニタイズされていない: %v", got.Profile.FavoriteStores)
	}
	if stored == nil || stored.FavoriteStores[0] != "Aldi" || stored.UserID != "auth0|user-1" {
		t.Errorf("保存したプロフィールが返されていない: %+v", stored)
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0] != OutcomeSuccess {
		t.Errorf("outcomes = %v", rec.outcomes)
	}
}

func TestService_Complete_FlagOnlyVariant(t *testing.T) {
	var got idp.AppMetadata
	writer := &mockWriter{updateFn: func(ctx context.Context, accessToken, userID string, meta idp.AppMetadata) error {
		got = meta
		return nil
	}}
	svc := newTestService(okTokens(), writer, nil)

	stored, err := svc.Complete(context.Background(), "user-1", nil)
	if err != nil {
		t.Fatalf("Complete() がエラーを返した: %v", err)
	}
	if stored != nil {
		t.Errorf("フラグのみの場合はプロフィールを返さない: %+v", stored)
	}
	if !got.HasCompletedOnboarding || got.Profile != nil {
		t.Errorf("フラグのみの書き込みを期待: %+v", got)
	}
}

func TestService_Complete_ValidationFailureNeverReachesNetwork(t *testing.T) {
	tokens := okTokens()
	writer := &mockWriter{updateFn: func(ctx context.Context, accessToken, userID string, meta idp.AppMetadata) error { return nil }}
	rec := &mockRecorder{}
	svc := newTestService(tokens, writer, rec)

	p := completedProfile()
	p.Goals = model.LabelSet{"<script>x</script>"}

	_, err := svc.Complete(context.Background(), "user-1", p)
	assertAPIErrorCode(t, err, model.ErrCodeValidationFailed)
	if tokens.calls != 0 || writer.calls != 0 {
		t.Errorf("検証失敗時に外部呼び出しが発生した: token=%d write=%d", tokens.calls, writer.calls)
	}
	if rec.outcomes[0] != OutcomeValidationFailed {
		t.Errorf("outcomes = %v", rec.outcomes)
	}
}

func TestService_Complete_CredentialFailure(t *testing.T) {
	tokens := &mockTokenSource{tokenFn: func(ctx context.Context) (string, error) {
		return "", errors.New("token endpoint unreachable")
	}}
	writer := &mockWriter{updateFn: func(ctx context.Context, accessToken, userID string, meta idp.AppMetadata) error { return nil }}
	svc := newTestService(tokens, writer, nil)

	_, err := svc.Complete(context.Background(), "user-1", completedProfile())
	assertAPIErrorCode(t, err, model.ErrCodeCredentialAcquisition)
	if writer.calls != 0 {
		t.Error("クレデンシャル取得失敗時に書き込みが発生した")
	}
}

func TestService_Complete_WriteFailure(t *testing.T) {
	writer := &mockWriter{updateFn: func(ctx context.Context, accessToken, userID string, meta idp.AppMetadata) error {
		return &idp.StatusError{Op: "metadata_write", StatusCode: 500}
	}}
	rec := &mockRecorder{}
	svc := newTestService(okTokens(), writer, rec)

	_, err := svc.Complete(context.Background(), "user-1", completedProfile())
	assertAPIErrorCode(t, err, model.ErrCodeMetadataWriteFailed)
	if rec.outcomes[0] != OutcomeWriteFailed {
		t.Errorf("outcomes = %v", rec.outcomes)
	}
}

func TestService_Complete_EmptySubject(t *testing.T) {
	svc := newTestService(okTokens(), &mockWriter{}, nil)
	_, err := svc.Complete(context.Background(), "", completedProfile())
	assertAPIErrorCode(t, err, model.ErrCodeUnauthorized)
}

// TestService_Complete_Idempotent は同じ内容の再実行が同じ書き込みになることを検証する。
func TestService_Complete_Idempotent(t *testing.T) {
	var writes []idp.AppMetadata
	writer := &mockWriter{updateFn: func(ctx context.Context, accessToken, userID string, meta idp.AppMetadata) error {
		writes = append(writes, meta)
		return nil
	}}
	svc := newTestService(okTokens(), writer, nil)

	p := completedProfile()
	for i := 0; i < 2; i++ {
		if _, err := svc.Complete(context.Background(), "user-1", p); err != nil {
			t.Fatalf("Complete() がエラーを返した: %v", err)
		}
	}
	if len(writes) != 2 {
		t.Fatalf("書き込み回数 = %d", len(writes))
	}
	a, b := writes[0].Profile, writes[1].Profile
	if a.UserID != b.UserID || len(a.Goals) != len(b.Goals) || a.Goals[0] != b.Goals[0] {
		t.Errorf("再実行で書き込み内容が変わった: %+v / %+v", a, b)
	}
}
