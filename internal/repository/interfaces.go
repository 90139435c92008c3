// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/teeup/internal/model"
)

// 制約違反などの結果を表すセンチネルエラー。errors.Isで判定する。
var (
	// ErrDuplicate は一意制約（同名の参加者、同一参加者・日付の申込）に違反した場合のエラー。
	ErrDuplicate = errors.New("repository: duplicate record")
	// ErrCapacityReached は日付の申込数が定員に達している場合のエラー。
	ErrCapacityReached = errors.New("repository: capacity reached")
	// ErrRosterFull は参加者数が名簿の上限に達している場合のエラー。
	ErrRosterFull = errors.New("repository: roster limit reached")
	// ErrParticipantMissing は申込先の参加者が存在しない場合のエラー。
	ErrParticipantMissing = errors.New("repository: participant does not exist")
	// ErrNotFound は更新対象が存在しない場合のエラー。
	ErrNotFound = errors.New("repository: record not found")
)

// ParticipantRepository は参加者データの永続化インターフェース。
type ParticipantRepository interface {
	// FindByID は指定IDの参加者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Participant, error)

	// FindByName は名前と姓の頭文字で参加者を検索する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, firstName, lastInitial string) (*model.Participant, error)

	// List は全参加者を名前、姓の頭文字の順で返す。
	List(ctx context.Context) ([]*model.Participant, error)

	// CreateWithLimit は名簿上限の確認と挿入を1つの原子的な操作として行う。
	// 同時に呼び出されても、参加者数がlimitを超えることはない。
	// 同名が存在する場合はErrDuplicate、上限に達している場合はErrRosterFullを返す。
	CreateWithLimit(ctx context.Context, participant *model.Participant, limit int) error

	// Update は参加者の名前・連絡先を上書きする。
	// 存在しない場合はErrNotFound、同名と衝突する場合はErrDuplicateを返す。
	Update(ctx context.Context, participant *model.Participant) error

	// Delete は指定IDの参加者を削除する。関連する申込はCASCADE削除される。
	// 削除した場合はtrue、存在しなかった場合はfalseを返す。
	Delete(ctx context.Context, id string) (bool, error)
}

// SignupRepository は申込データの永続化インターフェース。
// 返す申込には参加者の写し（Participant）が埋め込まれている。
type SignupRepository interface {
	// FindByID は指定IDの申込を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Signup, error)

	// FindByParticipantAndDate は参加者IDと日付で申込を検索する。見つからない場合はnilを返す。
	FindByParticipantAndDate(ctx context.Context, participantID, date string) (*model.Signup, error)

	// CreateWithCapacity は重複と定員の確認、挿入を1つの原子的な操作として行う。
	// 同時に呼び出されても、日付あたりの件数がcapacityを超えることはない。
	// 重複はErrDuplicate、定員超過はErrCapacityReached、参加者不在はErrParticipantMissingを返す。
	// 成功時はsignup.CreatedAtとsignup.Participantを埋める。
	CreateWithCapacity(ctx context.Context, signup *model.Signup, capacity int) error

	// Delete は指定IDの申込を削除する。削除した場合はtrue、存在しなかった場合はfalseを返す。
	Delete(ctx context.Context, id string) (bool, error)

	// ListByDateRange はfrom〜to（両端を含む）の申込を日付昇順、同日内は作成順で返す。
	ListByDateRange(ctx context.Context, from, to string) ([]*model.Signup, error)

	// ListByParticipant は参加者の申込を日付昇順で返す。
	ListByParticipant(ctx context.Context, participantID string) ([]*model.Signup, error)

	// DeleteAll は全申込を削除し、削除件数を返す。
	DeleteAll(ctx context.Context) (int64, error)

	// DeleteBefore はbeforeより前の日付の申込を削除し、削除件数を返す。
	DeleteBefore(ctx context.Context, before string) (int64, error)
}

// Repositories はドライバごとのリポジトリ実装の組。
type Repositories struct {
	Participants ParticipantRepository
	Signups      SignupRepository
}

// New はドライバ名に対応するリポジトリ実装を生成する。
func New(driver string, db *sql.DB) (*Repositories, error) {
	switch driver {
	case "postgres":
		return &Repositories{
			Participants: NewPostgresParticipantRepo(db),
			Signups:      NewPostgresSignupRepo(db),
		}, nil
	case "sqlite":
		return &Repositories{
			Participants: NewSQLiteParticipantRepo(db),
			Signups:      NewSQLiteSignupRepo(db),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", driver)
	}
}
