package dates

import (
	"testing"
	"time"
)

func TestKey_UsesUTCFields(t *testing.T) {
	// UTC-10 の深夜はUTCでは翌日になる
	hst := time.FixedZone("HST", -10*60*60)
	local := time.Date(2025, 6, 9, 20, 30, 0, 0, hst)

	if got := Key(local); got != "2025-06-10" {
		t.Errorf("Key() = %q, want %q", got, "2025-06-10")
	}
}

func TestKey_DiscardsTimeOfDay(t *testing.T) {
	a := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	b := time.Date(2025, 6, 9, 23, 59, 59, 999, time.UTC)

	if Key(a) != Key(b) {
		t.Errorf("Key(a) = %q, Key(b) = %q, want equal", Key(a), Key(b))
	}
	if !IsSameDay(a, b) {
		t.Error("IsSameDay should be true for values differing only in time-of-day")
	}
}

func TestParse_RoundTrip(t *testing.T) {
	start := time.Date(1999, 12, 25, 0, 0, 0, 0, time.UTC)
	// 閏年と月末をまたぐ範囲を網羅する
	for d := start; d.Year() < 2029; d = d.AddDate(0, 0, 3) {
		key := Key(d)
		parsed, err := Parse(key)
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", key, err)
		}
		if got := Key(parsed); got != key {
			t.Fatalf("Key(Parse(%q)) = %q", key, got)
		}
		if parsed.Location() != time.UTC || parsed.Hour() != 0 {
			t.Fatalf("Parse(%q) = %v, want UTC midnight", key, parsed)
		}
	}
}

func TestParse_RejectsInvalid(t *testing.T) {
	tests := []string{
		"",
		"2025-6-9",
		"2025-02-30",
		"2025-13-01",
		"2025-06-09T00:00:00Z",
		"20250609",
		"abcd-ef-gh",
		" 2025-06-09",
	}
	for _, in := range tests {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", in)
		}
		if Valid(in) {
			t.Errorf("Valid(%q) = true, want false", in)
		}
	}
}

func TestParse_AcceptsLeapDay(t *testing.T) {
	if !Valid("2024-02-29") {
		t.Error("2024-02-29 should be valid")
	}
	if Valid("2025-02-29") {
		t.Error("2025-02-29 should be invalid")
	}
}

func TestToday_IsUTCMidnight(t *testing.T) {
	now := time.Date(2025, 6, 9, 17, 45, 12, 0, time.UTC)
	got := Today(now)

	want := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Today() = %v, want %v", got, want)
	}
	if TodayKey(now) != "2025-06-09" {
		t.Errorf("TodayKey() = %q", TodayKey(now))
	}
}

func TestAddDays(t *testing.T) {
	got, err := AddDays("2025-02-27", 3)
	if err != nil {
		t.Fatalf("AddDays returned error: %v", err)
	}
	if got != "2025-03-02" {
		t.Errorf("AddDays = %q, want %q", got, "2025-03-02")
	}

	if _, err := AddDays("bad", 1); err == nil {
		t.Error("expected error for invalid key")
	}
}

func TestSignupWindow_StartsOnMonday(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		from string
		to   string
	}{
		{
			name: "水曜日",
			now:  time.Date(2025, 6, 11, 9, 0, 0, 0, time.UTC),
			from: "2025-06-09",
			to:   "2025-07-06",
		},
		{
			name: "月曜日",
			now:  time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC),
			from: "2025-06-09",
			to:   "2025-07-06",
		},
		{
			name: "日曜日は前週の月曜日から",
			now:  time.Date(2025, 6, 15, 23, 0, 0, 0, time.UTC),
			from: "2025-06-09",
			to:   "2025-07-06",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := SignupWindow(tt.now, 4)
			if w.From != tt.from || w.To != tt.to {
				t.Errorf("SignupWindow() = %s, want %s..%s", w, tt.from, tt.to)
			}
			if got := len(w.Days()); got != 28 {
				t.Errorf("len(Days()) = %d, want 28", got)
			}
		})
	}
}

func TestWindow_Contains(t *testing.T) {
	w := Window{From: "2025-06-09", To: "2025-06-15"}

	if !w.Contains("2025-06-09") || !w.Contains("2025-06-15") {
		t.Error("window bounds should be inclusive")
	}
	if w.Contains("2025-06-08") || w.Contains("2025-06-16") {
		t.Error("dates outside the window should not be contained")
	}
}

func TestNewWindow_RejectsReversedRange(t *testing.T) {
	if _, err := NewWindow("2025-06-10", "2025-06-09"); err == nil {
		t.Error("expected error for reversed range")
	}
	if _, err := NewWindow("2025-06-09", "2025-06-09"); err != nil {
		t.Errorf("single-day window should be valid: %v", err)
	}
}
