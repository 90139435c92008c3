// Package participant は参加者（ゴルファー）名簿のドメインロジックを提供する。
package participant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/teeup/internal/model"
	"github.com/hitoshi/teeup/internal/repository"
	"github.com/hitoshi/teeup/internal/security"
)

// 名前の形式と連絡先の上限
var (
	firstNamePattern   = regexp.MustCompile(`^[A-Za-z]{2,15}$`)
	lastInitialPattern = regexp.MustCompile(`^[A-Za-z]$`)
)

// MaxContactLength は連絡先の最大文字数。
const MaxContactLength = 32

// 同名参加者の作成ポリシー（config.DuplicatePolicy* と同じ値）
const (
	DuplicateReject = "reject"
	DuplicateLogin  = "login"
)

// Recorder は参加者操作のメトリクス記録インターフェース。
type Recorder interface {
	RecordParticipantCreated()
}

// Input は参加者作成・シード投入の入力値。
type Input struct {
	FirstName   string
	LastInitial string
	Contact     string
}

// Options はServiceの動作設定。
type Options struct {
	RosterLimit     int
	DuplicatePolicy string
	Recorder        Recorder
	Now             func() time.Time
}

// Service は参加者名簿のサービス層。
// 名前の検証、名簿上限、同名の扱いを一元的に管理する。
type Service struct {
	repo             repository.ParticipantRepository
	sanitizer        security.TextSanitizer
	rosterLimit      int
	loginOnDuplicate bool
	recorder         Recorder
	now              func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.ParticipantRepository, sanitizer security.TextSanitizer, opts Options) *Service {
	if opts.RosterLimit < 1 {
		opts.RosterLimit = 50
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	return &Service{
		repo:             repo,
		sanitizer:        sanitizer,
		rosterLimit:      opts.RosterLimit,
		loginOnDuplicate: opts.DuplicatePolicy == DuplicateLogin,
		recorder:         opts.Recorder,
		now:              opts.Now,
	}
}

// normalizeName は名前を検証し、保存形式（前後空白除去、頭文字は大文字）に変換する。
func normalizeName(firstName, lastInitial string) (string, string, error) {
	firstName = strings.TrimSpace(firstName)
	lastInitial = strings.TrimSpace(lastInitial)

	if firstName == "" || lastInitial == "" {
		return "", "", model.NewInvalidInputError("First name and last initial are required")
	}
	if !firstNamePattern.MatchString(firstName) {
		return "", "", model.NewInvalidNameError("First name must be 2-15 letters")
	}
	if !lastInitialPattern.MatchString(lastInitial) {
		return "", "", model.NewInvalidNameError("Last initial must be a single letter")
	}
	return firstName, strings.ToUpper(lastInitial), nil
}

// Create は参加者を作成する。
// 同名が既に存在する場合、rejectポリシーでは重複エラー、loginポリシーでは既存の参加者を返す。
// 名簿が上限に達している場合はROSTER_FULLエラーを返す。
func (s *Service) Create(ctx context.Context, in Input) (*model.Participant, error) {
	firstName, lastInitial, err := normalizeName(in.FirstName, in.LastInitial)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByName(ctx, firstName, lastInitial)
	if err != nil {
		return nil, fmt.Errorf("参加者の検索に失敗しました: %w", err)
	}
	if existing != nil {
		return s.resolveDuplicate(existing)
	}

	now := s.now().UTC()
	p := &model.Participant{
		ID:          uuid.New().String(),
		FirstName:   firstName,
		LastInitial: lastInitial,
		Contact:     s.sanitizer.Sanitize(in.Contact, MaxContactLength),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.CreateWithLimit(ctx, p, s.rosterLimit); err != nil {
		if errors.Is(err, repository.ErrRosterFull) {
			return nil, model.NewRosterFullError(s.rosterLimit)
		}
		if errors.Is(err, repository.ErrDuplicate) {
			// 検索と作成の間に同名が作られた場合
			existing, findErr := s.repo.FindByName(ctx, firstName, lastInitial)
			if findErr != nil {
				return nil, fmt.Errorf("参加者の検索に失敗しました: %w", findErr)
			}
			if existing == nil {
				return nil, model.NewDuplicateParticipantError()
			}
			return s.resolveDuplicate(existing)
		}
		return nil, fmt.Errorf("参加者の作成に失敗しました: %w", err)
	}

	if s.recorder != nil {
		s.recorder.RecordParticipantCreated()
	}
	return p, nil
}

func (s *Service) resolveDuplicate(existing *model.Participant) (*model.Participant, error) {
	if s.loginOnDuplicate {
		return existing, nil
	}
	return nil, model.NewDuplicateParticipantError()
}

// Update は参加者を部分更新する。patchのnilフィールドは変更しない。
func (s *Service) Update(ctx context.Context, id string, patch model.ParticipantPatch) (*model.Participant, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("参加者の取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewParticipantNotFoundError(id)
	}

	firstName, lastInitial := p.FirstName, p.LastInitial
	if patch.FirstName != nil {
		firstName = *patch.FirstName
	}
	if patch.LastInitial != nil {
		lastInitial = *patch.LastInitial
	}
	firstName, lastInitial, err = normalizeName(firstName, lastInitial)
	if err != nil {
		return nil, err
	}

	p.FirstName = firstName
	p.LastInitial = lastInitial
	if patch.Contact != nil {
		p.Contact = s.sanitizer.Sanitize(*patch.Contact, MaxContactLength)
	}
	p.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, p); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, model.NewDuplicateParticipantError()
		case errors.Is(err, repository.ErrNotFound):
			return nil, model.NewParticipantNotFoundError(id)
		}
		return nil, fmt.Errorf("参加者の更新に失敗しました: %w", err)
	}
	return p, nil
}

// Delete は参加者と、その参加者の全申込を削除する。
func (s *Service) Delete(ctx context.Context, id string) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("参加者の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewParticipantNotFoundError(id)
	}
	return nil
}

// Get は指定IDの参加者を返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Participant, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("参加者の取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewParticipantNotFoundError(id)
	}
	return p, nil
}

// List は全参加者を名前、姓の頭文字の順で返す。
func (s *Service) List(ctx context.Context) ([]*model.Participant, error) {
	participants, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("参加者一覧の取得に失敗しました: %w", err)
	}
	return participants, nil
}

// FindByName は名前と姓の頭文字で参加者を検索する。見つからない場合はnilを返す。
// 頭文字は大文字・小文字を区別しない。
func (s *Service) FindByName(ctx context.Context, firstName, lastInitial string) (*model.Participant, error) {
	firstName = strings.TrimSpace(firstName)
	lastInitial = strings.ToUpper(strings.TrimSpace(lastInitial))
	if firstName == "" || lastInitial == "" {
		return nil, model.NewInvalidInputError("First name and last initial are required")
	}

	p, err := s.repo.FindByName(ctx, firstName, lastInitial)
	if err != nil {
		return nil, fmt.Errorf("参加者の検索に失敗しました: %w", err)
	}
	return p, nil
}

// SeedResult はシード投入の結果件数。
type SeedResult struct {
	Created int
	Updated int
}

// Seed は参加者を名前をキーにUPSERTする。
// 既存の参加者は連絡先のみ更新し、存在しない参加者は名簿上限の範囲で作成する。
func (s *Service) Seed(ctx context.Context, inputs []Input) (SeedResult, error) {
	var result SeedResult
	for _, in := range inputs {
		firstName, lastInitial, err := normalizeName(in.FirstName, in.LastInitial)
		if err != nil {
			return result, fmt.Errorf("シードデータが不正です (%s %s): %w", in.FirstName, in.LastInitial, err)
		}

		existing, err := s.repo.FindByName(ctx, firstName, lastInitial)
		if err != nil {
			return result, fmt.Errorf("参加者の検索に失敗しました: %w", err)
		}
		if existing != nil {
			contact := in.Contact
			if _, err := s.Update(ctx, existing.ID, model.ParticipantPatch{Contact: &contact}); err != nil {
				return result, err
			}
			result.Updated++
			continue
		}

		if _, err := s.Create(ctx, Input{FirstName: firstName, LastInitial: lastInitial, Contact: in.Contact}); err != nil {
			return result, err
		}
		result.Created++
	}
	return result, nil
}

// DefaultRoster は初期投入用の参加者一覧を返す。
func DefaultRoster() []Input {
	return []Input{
		{FirstName: "John", LastInitial: "S", Contact: "(555) 123-4567"},
		{FirstName: "Mary", LastInitial: "J", Contact: "(555) 234-5678"},
		{FirstName: "Robert", LastInitial: "D", Contact: "(555) 345-6789"},
		{FirstName: "Sarah", LastInitial: "W", Contact: "(555) 456-7890"},
		{FirstName: "Michael", LastInitial: "B", Contact: "(555) 567-8901"},
		{FirstName: "David", LastInitial: "L", Contact: "(555) 678-9012"},
		{FirstName: "Jennifer", LastInitial: "M", Contact: "(555) 789-0123"},
		{FirstName: "James", LastInitial: "T", Contact: "(555) 890-1234"},
	}
}
