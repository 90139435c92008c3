// Package signup は日付ごとの申込（ティータイム枠）のドメインロジックを提供する。
package signup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/teeup/internal/dates"
	"github.com/hitoshi/teeup/internal/model"
	"github.com/hitoshi/teeup/internal/repository"
)

// DefaultCapacity は1日あたりの申込上限の既定値。
const DefaultCapacity = 8

// DefaultWindowWeeks は一覧表示の既定週数。
const DefaultWindowWeeks = 4

// 申込拒否の理由（メトリクスのラベル）
const (
	RejectInvalid   = "invalid"
	RejectNotFound  = "not_found"
	RejectDuplicate = "duplicate"
	RejectFull      = "full"
)

// Recorder は申込操作のメトリクス記録インターフェース。
type Recorder interface {
	RecordSignupCreated()
	RecordSignupRejected(reason string)
	RecordSignupDeleted(alreadyAbsent bool)
}

// Options はServiceの動作設定。
type Options struct {
	Capacity    int
	WindowWeeks int
	Recorder    Recorder
	Now         func() time.Time
}

// Service は申込のサービス層。
// 定員と重複の判定はストアの原子的な操作に委ね、プロセス内のロックには依存しない。
type Service struct {
	signups      repository.SignupRepository
	participants repository.ParticipantRepository
	capacity     int
	windowWeeks  int
	recorder     Recorder
	now          func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(signups repository.SignupRepository, participants repository.ParticipantRepository, opts Options) *Service {
	if opts.Capacity < 1 {
		opts.Capacity = DefaultCapacity
	}
	if opts.WindowWeeks < 1 {
		opts.WindowWeeks = DefaultWindowWeeks
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		signups:      signups,
		participants: participants,
		capacity:     opts.Capacity,
		windowWeeks:  opts.WindowWeeks,
		recorder:     opts.Recorder,
		now:          opts.Now,
	}
}

// Capacity は1日あたりの申込上限を返す。
func (s *Service) Capacity() int {
	return s.capacity
}

func (s *Service) reject(reason string, err error) error {
	if s.recorder != nil {
		s.recorder.RecordSignupRejected(reason)
	}
	return err
}

// Create は参加者の指定日への申込を作成する。
// 同じ参加者・日付の申込が既にある場合は重複エラー、定員に達している場合はDATE_FULLエラーを返す。
func (s *Service) Create(ctx context.Context, participantID, date string) (*model.Signup, error) {
	participantID = strings.TrimSpace(participantID)
	date = strings.TrimSpace(date)

	if participantID == "" || date == "" {
		return nil, s.reject(RejectInvalid, model.NewInvalidInputError("Golfer ID and date are required"))
	}
	if !dates.Valid(date) {
		return nil, s.reject(RejectInvalid, model.NewInvalidDateError(date))
	}

	p, err := s.participants.FindByID(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("参加者の取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, s.reject(RejectNotFound, model.NewParticipantNotFoundError(participantID))
	}

	signup := &model.Signup{
		ID:            uuid.New().String(),
		ParticipantID: p.ID,
		Date:          date,
		CreatedAt:     s.now().UTC(),
		Participant:   p.Snapshot(),
	}

	if err := s.signups.CreateWithCapacity(ctx, signup, s.capacity); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, s.reject(RejectDuplicate, model.NewDuplicateSignupError())
		case errors.Is(err, repository.ErrCapacityReached):
			return nil, s.reject(RejectFull, model.NewDateFullError(s.capacity))
		case errors.Is(err, repository.ErrParticipantMissing):
			return nil, s.reject(RejectNotFound, model.NewParticipantNotFoundError(participantID))
		}
		return nil, fmt.Errorf("申込の作成に失敗しました: %w", err)
	}

	if s.recorder != nil {
		s.recorder.RecordSignupCreated()
	}
	return signup, nil
}

// Delete は申込を削除する。存在しないIDも成功として扱い、AlreadyAbsentで通知する。
func (s *Service) Delete(ctx context.Context, id string) (model.DeleteResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.DeleteResult{}, model.NewInvalidInputError("Signup ID is required")
	}

	deleted, err := s.signups.Delete(ctx, id)
	if err != nil {
		return model.DeleteResult{}, fmt.Errorf("申込の削除に失敗しました: %w", err)
	}

	if s.recorder != nil {
		s.recorder.RecordSignupDeleted(!deleted)
	}
	return model.DeleteResult{DeletedID: id, AlreadyAbsent: !deleted}, nil
}

// List はfrom〜to（両端を含む）の申込を日付昇順、同日内は作成順で返す。
func (s *Service) List(ctx context.Context, from, to string) ([]*model.Signup, error) {
	w, err := dates.NewWindow(strings.TrimSpace(from), strings.TrimSpace(to))
	if err != nil {
		return nil, model.NewInvalidInputError(fmt.Sprintf("Invalid date range: %s..%s", from, to))
	}
	return s.listWindow(ctx, w)
}

// ListWindow はnowを含む週の月曜日から設定週数分の申込を返す。
func (s *Service) ListWindow(ctx context.Context, now time.Time) (dates.Window, []*model.Signup, error) {
	w := s.Window(now)
	signups, err := s.listWindow(ctx, w)
	return w, signups, err
}

// Window はnow時点の表示対象範囲を返す。
func (s *Service) Window(now time.Time) dates.Window {
	return dates.SignupWindow(now, s.windowWeeks)
}

func (s *Service) listWindow(ctx context.Context, w dates.Window) ([]*model.Signup, error) {
	signups, err := s.signups.ListByDateRange(ctx, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("申込一覧の取得に失敗しました: %w", err)
	}
	if signups == nil {
		signups = []*model.Signup{}
	}
	return signups, nil
}

// ListByParticipant は参加者の申込を日付昇順で返す。
// 参加者が存在しない場合はPARTICIPANT_NOT_FOUNDエラーを返す。
func (s *Service) ListByParticipant(ctx context.Context, participantID string) ([]*model.Signup, error) {
	p, err := s.participants.FindByID(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("参加者の取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewParticipantNotFoundError(participantID)
	}

	signups, err := s.signups.ListByParticipant(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("参加者の申込一覧の取得に失敗しました: %w", err)
	}
	if signups == nil {
		signups = []*model.Signup{}
	}
	return signups, nil
}

// ClearAll は全申込を削除し、削除件数を返す。
func (s *Service) ClearAll(ctx context.Context) (int64, error) {
	n, err := s.signups.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("全申込の削除に失敗しました: %w", err)
	}
	return n, nil
}

// PurgeBefore はbeforeより前の日付の申込を削除し、削除件数を返す。
func (s *Service) PurgeBefore(ctx context.Context, before string) (int64, error) {
	if !dates.Valid(before) {
		return 0, model.NewInvalidDateError(before)
	}
	n, err := s.signups.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("過去の申込の削除に失敗しました: %w", err)
	}
	return n, nil
}
