package model

import (
	"strings"
	"time"
)

// Participant は日付に申し込める参加者（ゴルファー）を表す。
// (FirstName, LastInitial) の組は一意で、LastInitialは常に大文字で保存される。
type Participant struct {
	ID          string
	FirstName   string
	LastInitial string
	Contact     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DisplayName は表示用の名前（"Ann K"）を返す。
func (p *Participant) DisplayName() string {
	return p.FirstName + " " + strings.ToUpper(p.LastInitial)
}

// ParticipantPatch は参加者の部分更新内容を表す。nilのフィールドは変更しない。
type ParticipantPatch struct {
	FirstName   *string
	LastInitial *string
	Contact     *string
}

// ParticipantSnapshot は申込に埋め込む参加者情報の写し。
// 一覧表示で追加の取得をせずに名前を出すために使う。
type ParticipantSnapshot struct {
	ID          string
	FirstName   string
	LastInitial string
}

// Snapshot は参加者の写しを返す。
func (p *Participant) Snapshot() ParticipantSnapshot {
	return ParticipantSnapshot{
		ID:          p.ID,
		FirstName:   p.FirstName,
		LastInitial: p.LastInitial,
	}
}
