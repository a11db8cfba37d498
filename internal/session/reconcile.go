package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/mealplanner/internal/model"
)

// ErrMalformedMetadata は保存済みメタデータが期待した形式でない場合のエラー。
var ErrMalformedMetadata = errors.New("malformed profile metadata")

// Case はメタデータの分類結果。
type Case int

const (
	// CaseNewIdentity はメタデータがない新規アイデンティティ。
	CaseNewIdentity Case = iota
	// CaseLegacyFlag は完了フラグのみの旧形式レコード。
	CaseLegacyFlag
	// CaseFullRecord はプロフィール全体が保存されたレコード。
	CaseFullRecord
)

// String は分類名を返す。
func (c Case) String() string {
	switch c {
	case CaseFullRecord:
		return "full-record"
	case CaseLegacyFlag:
		return "legacy-flag"
	default:
		return "new-identity"
	}
}

// MetadataFromClaims はIDトークンのクレームから名前空間付きのapp_metadataを取り出す。
// 存在しない場合はnilを返す。
func MetadataFromClaims(claims map[string]interface{}, namespace string) interface{} {
	if claims == nil {
		return nil
	}
	return claims[namespace+"app_metadata"]
}

// Reconcile はメタデータを分類し、セッションの正とするプロフィールを返す。
// 優先順位は次の通り。
//  1. プロフィール全体がある: そのまま採用し、userIDを上書きする。隣接する完了フラグがあればそれで上書きする。
//  2. 完了フラグ（true）のみ: baseを採用し、userIDを刻印して完了済みとする。
//  3. どちらもない: 既定のプロフィールにuserIDを刻印し、未完了とする。
//
// メタデータが壊れている場合は3として扱い、ログ用にErrMalformedMetadataをラップしたエラーも返す。
// panicはしない。
func Reconcile(meta interface{}, base model.UserProfile, userID string) (model.UserProfile, Case, error) {
	fresh := model.DefaultProfile()
	fresh.UserID = userID

	fields, err := metadataFields(meta)
	if err != nil {
		return fresh, CaseNewIdentity, err
	}
	if fields == nil {
		return fresh, CaseNewIdentity, nil
	}

	flag, hasFlag, err := parseFlag(fields["hasCompletedOnboarding"])
	if err != nil {
		return fresh, CaseNewIdentity, err
	}

	record, hasRecord, err := parseRecord(fields["profile"])
	if err != nil {
		return fresh, CaseNewIdentity, err
	}

	switch {
	case hasRecord:
		p := record.Clone()
		p.UserID = userID
		if hasFlag {
			p.HasCompletedOnboarding = flag
		}
		return p, CaseFullRecord, nil
	case hasFlag && flag:
		p := base.Clone()
		p.UserID = userID
		p.HasCompletedOnboarding = true
		return p, CaseLegacyFlag, nil
	default:
		return fresh, CaseNewIdentity, nil
	}
}

// metadataFields はメタデータをキーごとの生JSONに分解する。
// オブジェクトまたはJSON文字列を受け付ける。nilの場合はnilを返す。
func metadataFields(meta interface{}) (map[string]json.RawMessage, error) {
	var raw []byte
	switch v := meta.(type) {
	case nil:
		return nil, nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	case json.RawMessage:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
		}
		raw = b
	}

	if isNull(raw) {
		return nil, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: app_metadata: %v", ErrMalformedMetadata, err)
	}
	return fields, nil
}

func parseFlag(raw json.RawMessage) (value, present bool, err error) {
	if isNull(raw) {
		return false, false, nil
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return false, false, fmt.Errorf("%w: hasCompletedOnboarding: %v", ErrMalformedMetadata, err)
	}
	return value, true, nil
}

// parseRecord はプロフィール全体を読み込む。
// 文字列としてシリアライズされたプロフィールも受け付ける。
func parseRecord(raw json.RawMessage) (model.UserProfile, bool, error) {
	if isNull(raw) {
		return model.UserProfile{}, false, nil
	}

	body := []byte(raw)
	var encoded string
	if json.Unmarshal(raw, &encoded) == nil {
		body = []byte(encoded)
		if isNull(body) {
			return model.UserProfile{}, false, nil
		}
	}

	if trimmed := bytes.TrimSpace(body); len(trimmed) == 0 || trimmed[0] != '{' {
		return model.UserProfile{}, false, fmt.Errorf("%w: profile is not an object", ErrMalformedMetadata)
	}
	var p model.UserProfile
	if err := json.Unmarshal(body, &p); err != nil {
		return model.UserProfile{}, false, fmt.Errorf("%w: profile: %v", ErrMalformedMetadata, err)
	}
	if p.ActivityLevel == "" {
		p.ActivityLevel = model.ActivityModerate
	}
	return p, true, nil
}

func isNull(raw []byte) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
