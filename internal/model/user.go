package model

import "time"

// Principal はベアラークレデンシャルから検証済みの呼び出し元を表す。
// SubjectはIdPが発行した安定したアイデンティティIDで、プロフィールのuserIDとして使用する。
type Principal struct {
	Subject   string
	Audience  []string
	ExpiresAt time.Time
}
