package model

import (
	"encoding/json"
	"strings"
)

// LabelSet は自由入力ラベルの集合を表す。
// 挿入順は意味を持たず、同一ラベルの重複は抑止される。
// JSONでは常に配列として表現する（nilでも[]を出力する）。
type LabelSet []string

// NewLabelSet は与えられたラベルから重複と空文字を除いたLabelSetを生成する。
func NewLabelSet(labels ...string) LabelSet {
	s := LabelSet{}
	for _, l := range labels {
		s = s.Add(l)
	}
	return s
}

// Contains はラベルが集合に含まれるかを返す。
func (s LabelSet) Contains(label string) bool {
	for _, l := range s {
		if l == label {
			return true
		}
	}
	return false
}

// Toggle はラベルの対称差を取った新しい集合を返す。
// 含まれていれば取り除き、含まれていなければ追加する。
func (s LabelSet) Toggle(label string) LabelSet {
	if s.Contains(label) {
		return s.Remove(label)
	}
	out := s.Clone()
	return append(out, label)
}

// Add は前後の空白を取り除いたラベルを追加した新しい集合を返す。
// 空文字列や既存ラベルの場合は元と同じ内容を返す。
func (s LabelSet) Add(label string) LabelSet {
	label = strings.TrimSpace(label)
	out := s.Clone()
	if label == "" || s.Contains(label) {
		return out
	}
	return append(out, label)
}

// Remove はラベルを取り除いた新しい集合を返す。
func (s LabelSet) Remove(label string) LabelSet {
	out := make(LabelSet, 0, len(s))
	for _, l := range s {
		if l != label {
			out = append(out, l)
		}
	}
	return out
}

// Clone は集合のコピーを返す。nilの場合も空集合を返す。
func (s LabelSet) Clone() LabelSet {
	out := make(LabelSet, len(s))
	copy(out, s)
	return out
}

// Normalize は空白のトリムと重複除去を行った集合を返す。
// 外部から読み込んだ値の整形に使用する。
func (s LabelSet) Normalize() LabelSet {
	return NewLabelSet(s...)
}

// MarshalJSON はnilの集合も空配列として出力する。
func (s LabelSet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(s))
}

// UnmarshalJSON は配列を読み込み、重複を取り除く。
func (s *LabelSet) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = NewLabelSet(raw...)
	return nil
}
