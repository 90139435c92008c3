package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/teeup/internal/client"
	"github.com/hitoshi/teeup/internal/database"
	"github.com/hitoshi/teeup/internal/dates"
	"github.com/hitoshi/teeup/internal/handler"
	"github.com/hitoshi/teeup/internal/participant"
	"github.com/hitoshi/teeup/internal/repository"
	"github.com/hitoshi/teeup/internal/security"
	"github.com/hitoshi/teeup/internal/signup"
)

func newBookServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := database.Open(database.DriverSQLite, filepath.Join(t.TempDir(), "teeup.db"))
	if err != nil {
		t.Fatalf("データベースのオープンに失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.RunMigrations(context.Background(), db, database.DriverSQLite); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	repos, err := repository.New(database.DriverSQLite, db)
	if err != nil {
		t.Fatalf("repository.New returned error: %v", err)
	}

	srv := httptest.NewServer(handler.NewRouter(&handler.RouterDeps{
		ParticipantService: participant.NewService(repos.Participants, security.NewTextSanitizer(), participant.Options{}),
		SignupService:      signup.NewService(repos.Signups, repos.Participants, signup.Options{}),
		HealthChecker:      db,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// futureDate は今日からn日後の日付キーを返す。
func futureDate(t *testing.T, n int) string {
	t.Helper()
	d, err := dates.AddDays(dates.TodayKey(time.Now()), n)
	if err != nil {
		t.Fatalf("AddDays returned error: %v", err)
	}
	return d
}

func TestParseBookArgs(t *testing.T) {
	t.Setenv("TEEUP_API_URL", "http://teeup.example.com")
	t.Setenv("TEEUP_QUEUE_DIR", "/tmp/teeup-queue")

	var out bytes.Buffer
	opts, err := parseBookArgs([]string{"-first", "Ann", "-initial", "k", "-delay", "1s", "2025-06-10", "2025-06-11"}, &out)
	if err != nil {
		t.Fatalf("parseBookArgs returned error: %v", err)
	}
	if opts.FirstName != "Ann" || opts.LastInitial != "k" {
		t.Errorf("name = %q %q", opts.FirstName, opts.LastInitial)
	}
	if opts.APIURL != "http://teeup.example.com" {
		t.Errorf("APIURL = %q", opts.APIURL)
	}
	if opts.QueueDir != "/tmp/teeup-queue" {
		t.Errorf("QueueDir = %q", opts.QueueDir)
	}
	if opts.FlushDelay != time.Second {
		t.Errorf("FlushDelay = %v, want 1s", opts.FlushDelay)
	}
	if strings.Join(opts.Dates, ",") != "2025-06-10,2025-06-11" {
		t.Errorf("Dates = %v", opts.Dates)
	}
}

func TestParseBookArgs_RequiresIdentity(t *testing.T) {
	var out bytes.Buffer
	if _, err := parseBookArgs([]string{"-first", "Ann"}, &out); err == nil {
		t.Error("expected error without -initial")
	}
	if _, err := parseBookArgs([]string{"-id", "p-1"}, &out); err != nil {
		t.Errorf("-id alone should be accepted, got %v", err)
	}
}

func TestBook_RegistersAndToggles(t *testing.T) {
	srv := newBookServer(t)
	day := futureDate(t, 1)

	var out bytes.Buffer
	opts := &bookOptions{
		FirstName:   "Ann",
		LastInitial: "k",
		APIURL:      srv.URL,
		FlushDelay:  time.Hour,
		Dates:       []string{day},
	}
	if err := book(context.Background(), &out, opts, discardLogger()); err != nil {
		t.Fatalf("book returned error: %v", err)
	}

	if !strings.Contains(out.String(), "registered Ann K") {
		t.Errorf("output should announce registration:\n%s", out.String())
	}
	if !strings.Contains(out.String(), day) || !strings.Contains(out.String(), "booked") {
		t.Errorf("output should show %s as booked:\n%s", day, out.String())
	}

	api := client.NewAPI(srv.URL, srv.Client(), nil)
	list, err := api.ListSignups(context.Background(), day, day)
	if err != nil {
		t.Fatalf("ListSignups returned error: %v", err)
	}
	if len(list) != 1 || list[0].Participant.FirstName != "Ann" {
		t.Fatalf("server state = %+v", list)
	}

	// 2回目の実行では既存の参加者でログインし、同じ日付をトグルで取り消す
	out.Reset()
	if err := book(context.Background(), &out, opts, discardLogger()); err != nil {
		t.Fatalf("second book returned error: %v", err)
	}
	if strings.Contains(out.String(), "registered") {
		t.Errorf("existing participant should not be registered again:\n%s", out.String())
	}
	list, _ = api.ListSignups(context.Background(), day, day)
	if len(list) != 0 {
		t.Errorf("signup should be removed, got %+v", list)
	}
}

func TestBook_ReportsPastDate(t *testing.T) {
	srv := newBookServer(t)

	var out bytes.Buffer
	opts := &bookOptions{
		FirstName:   "Bob",
		LastInitial: "L",
		APIURL:      srv.URL,
		Dates:       []string{"2000-01-03"},
	}
	if err := book(context.Background(), &out, opts, discardLogger()); err != nil {
		t.Fatalf("book returned error: %v", err)
	}
	if !strings.Contains(out.String(), "2000-01-03: ") {
		t.Errorf("output should report the rejected date:\n%s", out.String())
	}
}

func TestBook_OfflineQueueIsReplayedOnNextRun(t *testing.T) {
	srv := newBookServer(t)
	api := client.NewAPI(srv.URL, srv.Client(), nil)
	p, err := api.CreateParticipant(context.Background(), "Cy", "M", "")
	if err != nil {
		t.Fatalf("CreateParticipant returned error: %v", err)
	}

	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	queueDir := t.TempDir()
	day := futureDate(t, 2)

	var out bytes.Buffer
	err = book(context.Background(), &out, &bookOptions{
		ParticipantID: p.ID,
		APIURL:        downURL,
		QueueDir:      queueDir,
		Dates:         []string{day},
	}, discardLogger())
	if err != nil {
		t.Fatalf("offline book returned error: %v", err)
	}
	if !strings.Contains(out.String(), "offline: 1 change(s) queued") {
		t.Fatalf("output should report the queued change:\n%s", out.String())
	}

	out.Reset()
	err = book(context.Background(), &out, &bookOptions{
		ParticipantID: p.ID,
		APIURL:        srv.URL,
		QueueDir:      queueDir,
	}, discardLogger())
	if err != nil {
		t.Fatalf("online book returned error: %v", err)
	}
	if strings.Contains(out.String(), "offline:") {
		t.Errorf("queue should be drained:\n%s", out.String())
	}

	list, err := api.ListSignups(context.Background(), day, day)
	if err != nil {
		t.Fatalf("ListSignups returned error: %v", err)
	}
	if len(list) != 1 || list[0].ParticipantID != p.ID {
		t.Errorf("replayed signup missing: %+v", list)
	}
}
