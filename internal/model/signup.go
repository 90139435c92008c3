package model

import "time"

// Signup は1人の参加者の1日付への申込を表す。
// 作成と削除のみで、更新されることはない。
type Signup struct {
	ID            string
	ParticipantID string
	Date          string // YYYY-MM-DD
	CreatedAt     time.Time
	Participant   ParticipantSnapshot
}

// SignupAction はクライアントの保留中変更の種別。
type SignupAction string

const (
	// SignupActionAdd は申込の追加。
	SignupActionAdd SignupAction = "add"
	// SignupActionRemove は申込の取消。
	SignupActionRemove SignupAction = "remove"
)

// Opposite は逆の操作を返す。
func (a SignupAction) Opposite() SignupAction {
	if a == SignupActionAdd {
		return SignupActionRemove
	}
	return SignupActionAdd
}

// DeleteResult は申込削除の結果。
// 既に存在しなかった場合もエラーにはせず、AlreadyAbsentで通知する。
type DeleteResult struct {
	DeletedID     string
	AlreadyAbsent bool
}
