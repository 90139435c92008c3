package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/hitoshi/teeup/internal/client"
	"github.com/hitoshi/teeup/internal/dates"
	"github.com/hitoshi/teeup/internal/logger"
	"github.com/hitoshi/teeup/internal/model"
)

// bookOptions はbookサブコマンドの設定。
type bookOptions struct {
	ParticipantID string
	FirstName     string
	LastInitial   string
	Contact       string
	APIURL        string
	QueueDir      string
	FlushDelay    time.Duration
	Dates         []string
}

// parseBookArgs はbookサブコマンドのフラグと日付引数を解析する。
func parseBookArgs(args []string, output io.Writer) (*bookOptions, error) {
	opts := &bookOptions{}

	fs := flag.NewFlagSet("book", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintln(output, "usage: teeup book [flags] [YYYY-MM-DD ...]")
		fs.PrintDefaults()
	}
	fs.StringVar(&opts.ParticipantID, "id", "", "participant ID (skips the name lookup)")
	fs.StringVar(&opts.FirstName, "first", "", "first name")
	fs.StringVar(&opts.LastInitial, "initial", "", "last initial")
	fs.StringVar(&opts.Contact, "contact", "", "contact used when registering a new participant")
	fs.StringVar(&opts.APIURL, "api", envOr("TEEUP_API_URL", "http://localhost:8080"), "API base URL")
	fs.StringVar(&opts.QueueDir, "queue-dir", envOr("TEEUP_QUEUE_DIR", defaultQueueDir()), "directory for the offline queue (empty keeps it in memory)")
	fs.DurationVar(&opts.FlushDelay, "delay", client.DefaultFlushDelay, "debounce delay before changes are sent")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.Dates = fs.Args()

	if opts.ParticipantID == "" && (opts.FirstName == "" || opts.LastInitial == "") {
		return nil, errors.New("-id or both -first and -initial are required")
	}
	return opts, nil
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func defaultQueueDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "teeup")
}

// runBook はbookサブコマンドを実行する。ログは標準エラーへ、結果はwへ出力する。
func runBook(w io.Writer, args []string) error {
	opts, err := parseBookArgs(args, w)
	if err != nil {
		return err
	}

	log := logger.New(os.Stderr, logger.Options{
		Format: envOr("LOG_FORMAT", logger.FormatText),
		Level:  envOr("LOG_LEVEL", "warn"),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return book(ctx, w, opts, log)
}

// book は参加者を解決し、指定日付をクライアントストアでトグルして同期する。
// サーバーに到達できない変更はオフラインキューに残し、次回の実行で再送する。
func book(ctx context.Context, w io.Writer, opts *bookOptions, log *slog.Logger) error {
	api := client.NewAPI(opts.APIURL, nil, log)

	participantID := opts.ParticipantID
	if participantID == "" {
		p, err := resolveParticipant(ctx, w, api, opts)
		if err != nil {
			return err
		}
		participantID = p.ID
	}

	var storage client.QueueStorage = client.NewMemoryQueueStorage()
	if opts.QueueDir != "" {
		fileStorage, err := client.NewFileQueueStorage(opts.QueueDir)
		if err != nil {
			return err
		}
		storage = fileStorage
	}

	store, err := client.NewStore(api, client.StoreOptions{
		ParticipantID: participantID,
		FlushDelay:    opts.FlushDelay,
		Storage:       storage,
		Logger:        log,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	// 前回の実行で残った変更があれば疎通確認のうえ再送する
	if !store.Online() {
		client.NewMonitor(api, store, 0, log).Probe(ctx)
	}
	if store.Online() {
		if err := store.Refresh(ctx); err != nil && !client.IsOffline(err) {
			return err
		}
	}

	for _, date := range opts.Dates {
		if err := store.Toggle(date); err != nil {
			fmt.Fprintf(w, "%s: %s\n", date, errorMessage(err))
		}
	}

	if err := store.Flush(ctx); err != nil && !client.IsOffline(err) {
		writeCalendar(w, store)
		return err
	}

	writeCalendar(w, store)
	if queued := store.Queued(); len(queued) > 0 {
		fmt.Fprintf(w, "offline: %d change(s) queued for the next run\n", len(queued))
	}
	return nil
}

// resolveParticipant は名前で参加者を検索し、未登録なら登録する。
func resolveParticipant(ctx context.Context, w io.Writer, api *client.API, opts *bookOptions) (*model.Participant, error) {
	p, err := api.FindParticipant(ctx, opts.FirstName, opts.LastInitial)
	if err != nil {
		return nil, fmt.Errorf("参加者の検索に失敗しました: %w", err)
	}
	if p != nil {
		return p, nil
	}

	p, err = api.CreateParticipant(ctx, opts.FirstName, opts.LastInitial, opts.Contact)
	if err != nil {
		return nil, fmt.Errorf("参加者の登録に失敗しました: %w", err)
	}
	fmt.Fprintf(w, "registered %s\n", p.DisplayName())
	return p, nil
}

// writeCalendar は表示範囲の日付ごとの申込数と自分の申込状態を出力する。
func writeCalendar(w io.Writer, store *client.Store) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, day := range store.Window().Days() {
		t, err := dates.Parse(day)
		if err != nil {
			continue
		}
		mark := ""
		switch {
		case store.IsBooked(day):
			mark = "booked"
		case store.IsFull(day):
			mark = "full"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\n", day, t.Weekday().String()[:3], store.Count(day), store.Capacity(), mark)
	}
	tw.Flush()
}

// errorMessage はユーザー向けのエラーメッセージを返す。
func errorMessage(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
