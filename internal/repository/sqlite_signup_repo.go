package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/teeup/internal/model"
)

var _ SignupRepository = (*SQLiteSignupRepo)(nil)

// SQLiteSignupRepo はSQLiteを使用した申込リポジトリ。
// date列には日付キー（YYYY-MM-DD）をそのまま保存し、同日内の作成順はrowidで表す。
type SQLiteSignupRepo struct {
	db *sql.DB
}

// NewSQLiteSignupRepo はSQLiteSignupRepoを生成する。
func NewSQLiteSignupRepo(db *sql.DB) *SQLiteSignupRepo {
	return &SQLiteSignupRepo{db: db}
}

const liteSignupSelect = `SELECT s.id, s.participant_id, s.date, s.created_at,
		p.id, p.first_name, p.last_initial
	 FROM signups s
	 JOIN participants p ON p.id = s.participant_id`

func scanSQLiteSignup(row interface{ Scan(...any) error }) (*model.Signup, error) {
	s := &model.Signup{}
	var createdAt string
	err := row.Scan(&s.ID, &s.ParticipantID, &s.Date, &createdAt,
		&s.Participant.ID, &s.Participant.FirstName, &s.Participant.LastInitial)
	if err != nil {
		return nil, err
	}
	if s.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SQLiteSignupRepo) list(ctx context.Context, query string, args ...any) ([]*model.Signup, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("申込一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var signups []*model.Signup
	for rows.Next() {
		s, err := scanSQLiteSignup(rows)
		if err != nil {
			return nil, fmt.Errorf("申込行の読み取りに失敗しました: %w", err)
		}
		signups = append(signups, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("申込一覧の走査に失敗しました: %w", err)
	}
	return signups, nil
}

// FindByID は指定IDの申込を取得する。見つからない場合はnilを返す。
func (r *SQLiteSignupRepo) FindByID(ctx context.Context, id string) (*model.Signup, error) {
	s, err := scanSQLiteSignup(r.db.QueryRowContext(ctx, liteSignupSelect+` WHERE s.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("申込の取得に失敗しました: %w", err)
	}
	return s, nil
}

// FindByParticipantAndDate は参加者IDと日付で申込を検索する。見つからない場合はnilを返す。
func (r *SQLiteSignupRepo) FindByParticipantAndDate(ctx context.Context, participantID, date string) (*model.Signup, error) {
	s, err := scanSQLiteSignup(r.db.QueryRowContext(ctx,
		liteSignupSelect+` WHERE s.participant_id = ? AND s.date = ?`,
		participantID, date,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("参加者と日付による申込の検索に失敗しました: %w", err)
	}
	return s, nil
}

// CreateWithCapacity は件数条件付きのINSERT 1文で定員確認と挿入を行う。
// 挿入されなかった場合は、重複か定員超過かを判別して返す。
func (r *SQLiteSignupRepo) CreateWithCapacity(ctx context.Context, signup *model.Signup, capacity int) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO signups (id, participant_id, date, created_at)
		 SELECT ?, ?, ?, ?
		 WHERE (SELECT COUNT(*) FROM signups WHERE date = ?) < ?`,
		signup.ID, signup.ParticipantID, signup.Date, formatSQLiteTime(signup.CreatedAt),
		signup.Date, capacity,
	)
	switch {
	case isForeignKeyViolation(err):
		return ErrParticipantMissing
	case isUniqueViolation(err):
		return ErrDuplicate
	case err != nil:
		return fmt.Errorf("申込の作成に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("作成結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		existing, err := r.FindByParticipantAndDate(ctx, signup.ParticipantID, signup.Date)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicate
		}
		return ErrCapacityReached
	}

	created, err := r.FindByID(ctx, signup.ID)
	if err != nil {
		return err
	}
	if created == nil {
		return fmt.Errorf("作成した申込が見つかりません: %s", signup.ID)
	}
	signup.Participant = created.Participant
	return nil
}

// Delete は指定IDの申込を削除する。
func (r *SQLiteSignupRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM signups WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("申込の削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}

// ListByDateRange はfrom〜toの申込を日付昇順、同日内は作成順で返す。
func (r *SQLiteSignupRepo) ListByDateRange(ctx context.Context, from, to string) ([]*model.Signup, error) {
	return r.list(ctx,
		liteSignupSelect+` WHERE s.date BETWEEN ? AND ? ORDER BY s.date ASC, s.rowid ASC`,
		from, to,
	)
}

// ListByParticipant は参加者の申込を日付昇順で返す。
func (r *SQLiteSignupRepo) ListByParticipant(ctx context.Context, participantID string) ([]*model.Signup, error) {
	return r.list(ctx,
		liteSignupSelect+` WHERE s.participant_id = ? ORDER BY s.date ASC`,
		participantID,
	)
}

// DeleteAll は全申込を削除し、削除件数を返す。
func (r *SQLiteSignupRepo) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM signups`)
	if err != nil {
		return 0, fmt.Errorf("全申込の削除に失敗しました: %w", err)
	}
	return result.RowsAffected()
}

// DeleteBefore はbeforeより前の日付の申込を削除し、削除件数を返す。
func (r *SQLiteSignupRepo) DeleteBefore(ctx context.Context, before string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM signups WHERE date < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("過去の申込の削除に失敗しました: %w", err)
	}
	return result.RowsAffected()
}
