// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrorKind はエラーの分類を表す。HTTPステータスへの対応付けに使用する。
type ErrorKind int

const (
	// KindInternal はストア障害などの内部エラー。
	KindInternal ErrorKind = iota
	// KindInvalidInput は入力値の形式不正。
	KindInvalidInput
	// KindNotFound は参照先の不存在。
	KindNotFound
	// KindConflict は名前や申込の重複。
	KindConflict
	// KindCapacityExceeded は名簿上限または日付ごとの定員超過。
	KindCapacityExceeded
)

// String はログ出力用の名前を返す。
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindCapacityExceeded:
		return "capacity_exceeded"
	default:
		return "internal"
	}
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Kind     ErrorKind // 分類
	Code     string    // エラーコード
	Message  string    // エラーメッセージ
	Category string    // カテゴリ: validation, participant, signup, system
	Action   string    // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidInput         = "INVALID_INPUT"
	ErrCodeInvalidDate          = "INVALID_DATE"
	ErrCodeInvalidName          = "INVALID_NAME"
	ErrCodeParticipantNotFound  = "PARTICIPANT_NOT_FOUND"
	ErrCodeDuplicateParticipant = "DUPLICATE_PARTICIPANT"
	ErrCodeRosterFull           = "ROSTER_FULL"
	ErrCodeDuplicateSignup      = "DUPLICATE_SIGNUP"
	ErrCodeDateFull             = "DATE_FULL"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// codeKinds はエラーコードから分類への対応表。
// クライアント側でレスポンスからAPIErrorを復元するときに使う。
var codeKinds = map[string]ErrorKind{
	ErrCodeInvalidInput:         KindInvalidInput,
	ErrCodeInvalidDate:          KindInvalidInput,
	ErrCodeInvalidName:          KindInvalidInput,
	ErrCodeParticipantNotFound:  KindNotFound,
	ErrCodeDuplicateParticipant: KindConflict,
	ErrCodeRosterFull:           KindCapacityExceeded,
	ErrCodeDuplicateSignup:      KindConflict,
	ErrCodeDateFull:             KindCapacityExceeded,
	ErrCodeInternal:             KindInternal,
}

// KindForCode はエラーコードに対応する分類を返す。未知のコードはKindInternal。
func KindForCode(code string) ErrorKind {
	if k, ok := codeKinds[code]; ok {
		return k
	}
	return KindInternal
}

// KindOf はエラーの分類を返す。APIErrorでない場合はKindInternal。
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindInternal
}

// HasCode はエラーが指定コードのAPIErrorかを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// NewInvalidInputError は必須項目の欠落などの入力エラーを生成する。
func NewInvalidInputError(message string) *APIError {
	return &APIError{
		Kind:     KindInvalidInput,
		Code:     ErrCodeInvalidInput,
		Message:  message,
		Category: "validation",
		Action:   "Check the request fields and try again.",
	}
}

// NewInvalidDateError は日付形式エラーを生成する。
func NewInvalidDateError(date string) *APIError {
	return &APIError{
		Kind:     KindInvalidInput,
		Code:     ErrCodeInvalidDate,
		Message:  fmt.Sprintf("Invalid date: %q", date),
		Category: "validation",
		Action:   "Use the YYYY-MM-DD format.",
	}
}

// NewInvalidNameError は名前の形式エラーを生成する。
func NewInvalidNameError(message string) *APIError {
	return &APIError{
		Kind:     KindInvalidInput,
		Code:     ErrCodeInvalidName,
		Message:  message,
		Category: "validation",
		Action:   "First name must be 2-15 letters and last initial a single letter.",
	}
}

// NewParticipantNotFoundError は参加者が見つからない場合のエラーを生成する。
func NewParticipantNotFoundError(id string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeParticipantNotFound,
		Message:  "Golfer not found",
		Category: "participant",
		Action:   fmt.Sprintf("Check the golfer ID (%s).", id),
	}
}

// NewDuplicateParticipantError は同名の参加者が既に存在する場合のエラーを生成する。
func NewDuplicateParticipantError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeDuplicateParticipant,
		Message:  "A golfer with this name already exists",
		Category: "participant",
		Action:   "Choose a different first name or last initial.",
	}
}

// NewRosterFullError は名簿が上限に達している場合のエラーを生成する。
func NewRosterFullError(limit int) *APIError {
	return &APIError{
		Kind:     KindCapacityExceeded,
		Code:     ErrCodeRosterFull,
		Message:  fmt.Sprintf("Maximum number of golfers (%d) has been reached", limit),
		Category: "participant",
		Action:   "Remove an inactive golfer before adding a new one.",
	}
}

// NewDuplicateSignupError は同じ日付に申込済みの場合のエラーを生成する。
func NewDuplicateSignupError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeDuplicateSignup,
		Message:  "You are already signed up for this date",
		Category: "signup",
		Action:   "Refresh the calendar to see your current bookings.",
	}
}

// NewDateFullError は日付の定員に達している場合のエラーを生成する。
func NewDateFullError(capacity int) *APIError {
	return &APIError{
		Kind:     KindCapacityExceeded,
		Code:     ErrCodeDateFull,
		Message:  fmt.Sprintf("This date is fully booked (%d golfers maximum)", capacity),
		Category: "signup",
		Action:   "Pick another date or wait for someone to cancel.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Kind:     KindInternal,
		Code:     ErrCodeInternal,
		Message:  "Something went wrong on our side",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}
