// Package dates は日付のみの値（時刻なし）を扱うユーティリティを提供する。
//
// すべての日付はUTCのカレンダー値として扱い、YYYY-MM-DD形式の文字列キーで表現する。
// ローカルタイムゾーンのフィールドは一切参照しないため、呼び出し側のタイムゾーンや
// 夏時間の切り替えによって日付が1日ずれることはない。
package dates

import (
	"fmt"
	"time"
)

// Layout は日付キーのフォーマット。
const Layout = "2006-01-02"

// Key は日付をYYYY-MM-DD形式のキーに変換する。
// UTCのカレンダーフィールドを使用し、時刻部分は無視される。
func Key(t time.Time) string {
	u := t.UTC()
	return fmt.Sprintf("%04d-%02d-%02d", u.Year(), int(u.Month()), u.Day())
}

// Parse はYYYY-MM-DD形式のキーをUTC 0時のtime.Timeに変換する。
// 実在しない日付（2025-02-30 など）やゼロ埋めされていない入力はエラーになる。
func Parse(key string) (time.Time, error) {
	if len(key) != len(Layout) {
		return time.Time{}, fmt.Errorf("invalid date key %q: want YYYY-MM-DD", key)
	}
	t, err := time.ParseInLocation(Layout, key, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date key %q: %w", key, err)
	}
	// 往復で一致しない入力（符号付き年など）も拒否する
	if Key(t) != key {
		return time.Time{}, fmt.Errorf("invalid date key %q: not canonical", key)
	}
	return t, nil
}

// Valid はキーが正しい日付キーかどうかを返す。
func Valid(key string) bool {
	_, err := Parse(key)
	return err == nil
}

// Truncate は時刻部分を切り捨て、UTC 0時の値を返す。
func Truncate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Today はnow時点のUTCカレンダー日付（0時）を返す。
func Today(now time.Time) time.Time {
	return Truncate(now)
}

// TodayKey はnow時点の日付キーを返す。
func TodayKey(now time.Time) string {
	return Key(now)
}

// IsSameDay は2つの値が同じ日付を表すかをキーの一致で判定する。
func IsSameDay(a, b time.Time) bool {
	return Key(a) == Key(b)
}

// AddDays はキーにn日を加算したキーを返す。
func AddDays(key string, n int) (string, error) {
	t, err := Parse(key)
	if err != nil {
		return "", err
	}
	return Key(t.AddDate(0, 0, n)), nil
}

// Before はキーaがキーbより前の日付かを返す。
// 正規化済みのキーは辞書順と日付順が一致する。
func Before(a, b string) bool {
	return a < b
}
