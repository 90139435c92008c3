package dates

import (
	"fmt"
	"time"
)

// Window は両端を含む日付キーの範囲。
type Window struct {
	From string
	To   string
}

// NewWindow は範囲を検証してWindowを生成する。
func NewWindow(from, to string) (Window, error) {
	if _, err := Parse(from); err != nil {
		return Window{}, err
	}
	if _, err := Parse(to); err != nil {
		return Window{}, err
	}
	if Before(to, from) {
		return Window{}, fmt.Errorf("invalid window: %s is before %s", to, from)
	}
	return Window{From: from, To: to}, nil
}

// SignupWindow はnowを含む週の月曜日から、weeks週後の日曜日までの範囲を返す。
// weeksが1未満の場合は1週として扱う。
func SignupWindow(now time.Time, weeks int) Window {
	if weeks < 1 {
		weeks = 1
	}
	today := Today(now)
	// time.Weekday は日曜=0。月曜始まりのオフセットに変換する
	offset := (int(today.Weekday()) + 6) % 7
	start := today.AddDate(0, 0, -offset)
	end := start.AddDate(0, 0, weeks*7-1)
	return Window{From: Key(start), To: Key(end)}
}

// Contains はキーが範囲内かを返す。
func (w Window) Contains(key string) bool {
	return !Before(key, w.From) && !Before(w.To, key)
}

// Days は範囲内のすべての日付キーを昇順で返す。
func (w Window) Days() []string {
	start, err := Parse(w.From)
	if err != nil {
		return nil
	}
	end, err := Parse(w.To)
	if err != nil {
		return nil
	}
	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, Key(d))
	}
	return days
}

// String はログ出力用の表現を返す。
func (w Window) String() string {
	return w.From + ".." + w.To
}
