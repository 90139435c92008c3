package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/teeup/internal/dates"
	"github.com/hitoshi/teeup/internal/model"
)

// 既定値
const (
	DefaultFlushDelay   = 500 * time.Millisecond
	DefaultCapacity     = 8
	DefaultWindowWeeks  = 4
	defaultFlushWorkers = 4
)

// StoreOptions はStoreの動作設定。
type StoreOptions struct {
	ParticipantID string
	Capacity      int
	WindowWeeks   int
	FlushDelay    time.Duration
	Clock         Clock
	Storage       QueueStorage
	Logger        *slog.Logger
	// FlushWorkers は1回のフラッシュで並行に送信する日付数の上限。
	FlushWorkers int
}

// Store は1人の参加者の申込をクライアント側で管理する状態コンテナ。
//
// トグルは即座に楽観的フラグへ反映し、保留中の変更としてキューに積む。
// キューはデバウンス後にまとめてサーバーへ送信し、成功時は正規の状態を再取得、
// 失敗時はフラグを巻き戻す。接続断による失敗はQueueStorageへ退避し、
// オンライン復帰時に1回だけ再送する。
type Store struct {
	api           SignupAPI
	storage       QueueStorage
	clock         Clock
	logger        *slog.Logger
	participantID string
	capacity      int
	windowWeeks   int
	workers       int
	debouncer     *Debouncer

	// flushMu はフラッシュを直列化する。同じ日付の変更が並行して送信されることを防ぐ。
	flushMu sync.Mutex

	mu       sync.Mutex
	snapshot []*model.Signup
	counts   map[string]int    // 日付ごとの正規の申込数
	mine     map[string]string // 日付 -> 自分の申込ID（正規の状態）
	created  map[string]string // 日付 -> 直近のフラッシュで作成した申込ID
	booked   map[string]bool   // 楽観的フラグ
	pending  []PendingChange
	inFlight map[uint64]bool
	durable  []PendingChange
	nextSeq  uint64
	online   bool
	lastErr  error
	onChange func()
}

// NewStore はStoreを生成する。保存済みのオフラインキューがあれば読み込み、
// 次のオンライン復帰で再送するためにオフライン状態で開始する。
func NewStore(api SignupAPI, opts StoreOptions) (*Store, error) {
	if opts.ParticipantID == "" {
		return nil, errors.New("participant ID is required")
	}
	if opts.Capacity < 1 {
		opts.Capacity = DefaultCapacity
	}
	if opts.WindowWeeks < 1 {
		opts.WindowWeeks = DefaultWindowWeeks
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = DefaultFlushDelay
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Storage == nil {
		opts.Storage = NewMemoryQueueStorage()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FlushWorkers < 1 {
		opts.FlushWorkers = defaultFlushWorkers
	}

	durable, err := opts.Storage.Load(opts.ParticipantID)
	if err != nil {
		return nil, fmt.Errorf("オフラインキューの読み込みに失敗しました: %w", err)
	}

	s := &Store{
		api:           api,
		storage:       opts.Storage,
		clock:         opts.Clock,
		logger:        opts.Logger,
		participantID: opts.ParticipantID,
		capacity:      opts.Capacity,
		windowWeeks:   opts.WindowWeeks,
		workers:       opts.FlushWorkers,
		counts:        make(map[string]int),
		mine:          make(map[string]string),
		created:       make(map[string]string),
		booked:        make(map[string]bool),
		inFlight:      make(map[uint64]bool),
		durable:       durable,
		online:        len(durable) == 0,
	}
	s.debouncer = NewDebouncer(opts.Clock, opts.FlushDelay, s.flushFromTimer)
	return s, nil
}

// OnChange は状態が変化したときに呼ばれるコールバックを登録する。
// コールバックはロックを保持しない状態で呼ばれる。
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

func (s *Store) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Close は待機中のフラッシュを取り消す。
func (s *Store) Close() {
	s.debouncer.Cancel()
}

// Toggle は日付の申込状態を反転する。
//
// 同じ日付の逆の変更が未送信で残っている場合は両方を取り消し、フラグを元に戻す。
// それ以外はフラグを反転して変更をキューに積み、デバウンスタイマーを張り直す。
// 過去の日付と、自分が申し込んでいない満員の日付は変更できない。
func (s *Store) Toggle(date string) error {
	if !dates.Valid(date) {
		return model.NewInvalidDateError(date)
	}

	s.mu.Lock()
	if dates.Before(date, dates.TodayKey(s.clock.Now())) {
		s.mu.Unlock()
		return model.NewInvalidInputError(fmt.Sprintf("Past dates cannot be changed: %s", date))
	}

	action := model.SignupActionAdd
	if s.booked[date] {
		action = model.SignupActionRemove
	}

	if i := s.cancellableIndex(date, action.Opposite()); i >= 0 {
		s.pending = append(s.pending[:i], s.pending[i+1:]...)
		s.booked[date] = !s.booked[date]
		empty := s.queuedCount() == 0
		s.mu.Unlock()

		if empty {
			s.debouncer.Cancel()
		}
		s.notify()
		return nil
	}

	if action == model.SignupActionAdd && s.counts[date] >= s.capacity && s.mine[date] == "" {
		s.mu.Unlock()
		return model.NewDateFullError(s.capacity)
	}

	s.booked[date] = action == model.SignupActionAdd
	s.enqueueLocked(date, action, s.clock.Now())
	s.mu.Unlock()

	s.debouncer.Trigger()
	s.notify()
	return nil
}

// cancellableIndex は送信中でない同じ日付・指定操作の保留変更の位置を返す。
func (s *Store) cancellableIndex(date string, action model.SignupAction) int {
	for i := len(s.pending) - 1; i >= 0; i-- {
		c := s.pending[i]
		if c.Date == date && c.Action == action && !s.inFlight[c.seq] {
			return i
		}
	}
	return -1
}

// queuedCount は送信中でない保留変更の数を返す。
func (s *Store) queuedCount() int {
	n := 0
	for _, c := range s.pending {
		if !s.inFlight[c.seq] {
			n++
		}
	}
	return n
}

func (s *Store) enqueueLocked(date string, action model.SignupAction, at time.Time) {
	s.nextSeq++
	s.pending = append(s.pending, PendingChange{Date: date, Action: action, QueuedAt: at, seq: s.nextSeq})
}

func (s *Store) flushFromTimer() {
	if err := s.Flush(context.Background()); err != nil {
		s.logger.Warn("申込の同期に失敗しました", slog.String("error", err.Error()))
	}
}

// flushResult は1日付分の送信結果。
type flushResult struct {
	change PendingChange
	err    error
}

// Flush は保留中の変更をサーバーへ送信する。
//
// 同じ日付の変更は最後のものだけを送り、異なる日付は並行に送信する。
// 追加で申込済みエラーが返った場合は成功として扱う。取消は直近の正規状態か、
// フラッシュで作成したIDを使い、IDが不明な場合は既に存在しないものとして扱う。
func (s *Store) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.debouncer.Cancel()

	s.mu.Lock()
	var taken []PendingChange
	for _, c := range s.pending {
		if !s.inFlight[c.seq] {
			taken = append(taken, c)
			s.inFlight[c.seq] = true
		}
	}
	s.mu.Unlock()

	if len(taken) == 0 {
		return nil
	}

	batch := dedupeByDate(taken)
	results := make([]flushResult, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, change := range batch {
		g.Go(func() error {
			results[i] = flushResult{change: change, err: s.dispatch(gctx, change)}
			// 個々の失敗で他の日付の送信を止めない
			return nil
		})
	}
	_ = g.Wait()

	var (
		failures  []error
		offline   []PendingChange
		succeeded int
	)

	s.mu.Lock()
	takenSeq := make(map[uint64]bool, len(taken))
	for _, c := range taken {
		takenSeq[c.seq] = true
		delete(s.inFlight, c.seq)
	}
	remaining := s.pending[:0]
	for _, c := range s.pending {
		if !takenSeq[c.seq] {
			remaining = append(remaining, c)
		}
	}
	s.pending = remaining

	for _, r := range results {
		if r.err == nil {
			succeeded++
			continue
		}
		s.rollbackLocked(r.change)
		if IsOffline(r.err) {
			offline = append(offline, r.change)
			continue
		}
		failures = append(failures, fmt.Errorf("%s %s: %w", r.change.Action, r.change.Date, r.err))
	}

	if len(offline) > 0 {
		s.online = false
		s.durable = dedupeByDate(append(s.durable, offline...))
		if err := s.storage.Save(s.participantID, s.durable); err != nil {
			s.logger.Error("オフラインキューの保存に失敗しました", slog.String("error", err.Error()))
		}
	}
	online := s.online
	flushErr := errors.Join(failures...)
	if flushErr != nil {
		s.lastErr = flushErr
	} else if len(offline) == 0 {
		s.lastErr = nil
	}
	s.mu.Unlock()

	if succeeded > 0 && online {
		if err := s.Refresh(ctx); err != nil {
			s.logger.Warn("申込一覧の再取得に失敗しました", slog.String("error", err.Error()))
		}
	} else {
		s.notify()
	}

	if len(offline) > 0 {
		return errors.Join(flushErr, fmt.Errorf("%d件の変更をオフラインキューに保存しました: %w", len(offline), ErrOffline))
	}
	return flushErr
}

// dispatch は1日付分の変更をサーバーへ送信する。
func (s *Store) dispatch(ctx context.Context, change PendingChange) error {
	switch change.Action {
	case model.SignupActionAdd:
		signup, err := s.api.CreateSignup(ctx, s.participantID, change.Date)
		if err != nil {
			// 素早い二重トグルで起こり得るため、申込済みは成功として扱う
			if model.HasCode(err, model.ErrCodeDuplicateSignup) {
				return nil
			}
			return err
		}
		s.mu.Lock()
		s.created[change.Date] = signup.ID
		s.mu.Unlock()
		return nil

	case model.SignupActionRemove:
		s.mu.Lock()
		id := s.created[change.Date]
		if id == "" {
			id = s.mine[change.Date]
		}
		s.mu.Unlock()

		if id == "" {
			// 取消対象が既に存在しない
			return nil
		}
		if _, err := s.api.DeleteSignup(ctx, id); err != nil {
			return err
		}
		s.mu.Lock()
		delete(s.created, change.Date)
		s.mu.Unlock()
		return nil

	default:
		return fmt.Errorf("unknown signup action: %q", change.Action)
	}
}

// rollbackLocked は失敗した変更の楽観的フラグを変更前に戻す。
// 同じ日付に新しい保留変更がある場合は、そちらのフラグを優先して何もしない。
func (s *Store) rollbackLocked(change PendingChange) {
	for _, c := range s.pending {
		if c.Date == change.Date {
			return
		}
	}
	s.booked[change.Date] = change.Action == model.SignupActionRemove
}

// dedupeByDate は日付ごとに最後の変更だけを残し、日付順に並べて返す。
func dedupeByDate(changes []PendingChange) []PendingChange {
	last := make(map[string]PendingChange, len(changes))
	for _, c := range changes {
		last[c.Date] = c
	}
	out := make([]PendingChange, 0, len(last))
	for _, c := range last {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Refresh はサーバーから表示範囲の申込一覧を取得し、正規の状態を更新する。
// 保留中の変更がない日付のフラグは正規の状態に合わせる。
func (s *Store) Refresh(ctx context.Context) error {
	w := dates.SignupWindow(s.clock.Now(), s.windowWeeks)

	signups, err := s.api.ListSignups(ctx, w.From, w.To)
	if err != nil {
		if IsOffline(err) {
			s.mu.Lock()
			s.online = false
			s.mu.Unlock()
			s.notify()
		}
		return fmt.Errorf("申込一覧の取得に失敗しました: %w", err)
	}

	s.mu.Lock()
	s.snapshot = signups
	s.counts = make(map[string]int)
	s.mine = make(map[string]string)
	for _, su := range signups {
		s.counts[su.Date]++
		if su.ParticipantID == s.participantID {
			s.mine[su.Date] = su.ID
		}
	}
	for date := range s.created {
		if s.mine[date] != "" {
			delete(s.created, date)
		}
	}

	pendingDates := make(map[string]bool, len(s.pending))
	for _, c := range s.pending {
		pendingDates[c.Date] = true
	}
	for date := range s.booked {
		if !pendingDates[date] && s.mine[date] == "" {
			delete(s.booked, date)
		}
	}
	for date := range s.mine {
		if !pendingDates[date] {
			s.booked[date] = true
		}
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

// SetOnline は接続状態を更新する。オフラインからオンラインに戻った場合は
// 保存済みのオフラインキューを1回だけ再送する。
func (s *Store) SetOnline(ctx context.Context, online bool) error {
	s.mu.Lock()
	wasOnline := s.online
	s.online = online
	s.mu.Unlock()

	if wasOnline == online {
		return nil
	}
	s.notify()

	if !online {
		return nil
	}
	return s.replay(ctx)
}

// replay はオフラインキューを保留中の変更に戻して送信する。
func (s *Store) replay(ctx context.Context) error {
	s.mu.Lock()
	queued := s.durable
	s.durable = nil
	if len(queued) == 0 {
		s.mu.Unlock()
		// 再送するものがなければ正規の状態だけ取り直す
		return s.Refresh(ctx)
	}

	// 退避した変更は現在の保留変更より古いものとして前に置く
	current := s.pending
	s.pending = nil
	for _, c := range queued {
		s.enqueueLocked(c.Date, c.Action, c.QueuedAt)
	}
	s.pending = append(s.pending, current...)
	for _, c := range dedupeByDate(s.pending) {
		s.booked[c.Date] = c.Action == model.SignupActionAdd
	}
	s.mu.Unlock()

	if err := s.storage.Clear(s.participantID); err != nil {
		s.logger.Error("オフラインキューの削除に失敗しました", slog.String("error", err.Error()))
	}

	s.logger.Info("オフラインキューを再送します",
		slog.String("participant_id", s.participantID),
		slog.Int("count", len(queued)),
	)
	return s.Flush(ctx)
}

// --- 参照系 ---

// IsBooked は日付に申し込んでいるか（楽観的フラグ）を返す。
func (s *Store) IsBooked(date string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.booked[date]
}

// Count は日付の申込数を返す。自分の未確定の変更を加味する。
func (s *Store) Count(date string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.counts[date]
	confirmed := s.mine[date] != ""
	switch {
	case s.booked[date] && !confirmed:
		n++
	case !s.booked[date] && confirmed:
		n--
	}
	return n
}

// IsFull は日付が正規の状態で満員かを返す。
func (s *Store) IsFull(date string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[date] >= s.capacity
}

// Selectable は日付を変更できるかを返す。過去の日付と、自分が申し込んでいない満員の日付は変更できない。
func (s *Store) Selectable(date string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dates.Before(date, dates.TodayKey(s.clock.Now())) {
		return false
	}
	return s.booked[date] || s.mine[date] != "" || s.counts[date] < s.capacity
}

// Pending は未送信・送信中の変更の写しを返す。
func (s *Store) Pending() []PendingChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PendingChange(nil), s.pending...)
}

// Queued はオフラインキューに退避されている変更の写しを返す。
func (s *Store) Queued() []PendingChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PendingChange(nil), s.durable...)
}

// Snapshot は直近に取得した正規の申込一覧の写しを返す。
func (s *Store) Snapshot() []*model.Signup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.Signup(nil), s.snapshot...)
}

// Online は直近の接続状態を返す。
func (s *Store) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Err は直近のフラッシュで発生した接続断以外のエラーを返す。
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Capacity は1日あたりの定員を返す。
func (s *Store) Capacity() int {
	return s.capacity
}

// Window は表示対象の日付範囲を返す。
func (s *Store) Window() dates.Window {
	return dates.SignupWindow(s.clock.Now(), s.windowWeeks)
}
