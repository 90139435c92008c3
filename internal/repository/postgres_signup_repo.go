package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/teeup/internal/model"
)

var _ SignupRepository = (*PostgresSignupRepo)(nil)

// PostgresSignupRepo はPostgreSQLを使用した申込リポジトリ。
// date列はDATE型で、日付キー（YYYY-MM-DD）との変換はSQL側で行う。
type PostgresSignupRepo struct {
	db *sql.DB
}

// NewPostgresSignupRepo はPostgresSignupRepoを生成する。
func NewPostgresSignupRepo(db *sql.DB) *PostgresSignupRepo {
	return &PostgresSignupRepo{db: db}
}

const pgSignupSelect = `SELECT s.id, s.participant_id, to_char(s.date, 'YYYY-MM-DD'), s.created_at,
		p.id, p.first_name, p.last_initial
	 FROM signups s
	 JOIN participants p ON p.id = s.participant_id`

func scanPostgresSignup(row interface{ Scan(...any) error }) (*model.Signup, error) {
	s := &model.Signup{}
	err := row.Scan(&s.ID, &s.ParticipantID, &s.Date, &s.CreatedAt,
		&s.Participant.ID, &s.Participant.FirstName, &s.Participant.LastInitial)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresSignupRepo) list(ctx context.Context, query string, args ...any) ([]*model.Signup, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("申込一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var signups []*model.Signup
	for rows.Next() {
		s, err := scanPostgresSignup(rows)
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
func (r *PostgresSignupRepo) FindByID(ctx context.Context, id string) (*model.Signup, error) {
	s, err := scanPostgresSignup(r.db.QueryRowContext(ctx, pgSignupSelect+` WHERE s.id::text = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("申込の取得に失敗しました: %w", err)
	}
	return s, nil
}

// FindByParticipantAndDate は参加者IDと日付で申込を検索する。見つからない場合はnilを返す。
func (r *PostgresSignupRepo) FindByParticipantAndDate(ctx context.Context, participantID, date string) (*model.Signup, error) {
	s, err := scanPostgresSignup(r.db.QueryRowContext(ctx,
		pgSignupSelect+` WHERE s.participant_id::text = $1 AND s.date = $2::date`,
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

// CreateWithCapacity は日付単位のアドバイザリロックを取得したトランザクション内で
// 重複確認・件数確認・挿入を行う。ロックはコミットまたはロールバックで解放される。
func (r *PostgresSignupRepo) CreateWithCapacity(ctx context.Context, signup *model.Signup, capacity int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "signups:"+signup.Date); err != nil {
		return fmt.Errorf("日付ロックの取得に失敗しました: %w", err)
	}

	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM signups WHERE participant_id::text = $1 AND date = $2::date)`,
		signup.ParticipantID, signup.Date,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("重複申込の確認に失敗しました: %w", err)
	}
	if exists {
		return ErrDuplicate
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM signups WHERE date = $1::date`, signup.Date).Scan(&count); err != nil {
		return fmt.Errorf("申込数の取得に失敗しました: %w", err)
	}
	if count >= capacity {
		return ErrCapacityReached
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO signups (id, participant_id, date, created_at) VALUES ($1, $2, $3::date, $4)`,
		signup.ID, signup.ParticipantID, signup.Date, signup.CreatedAt,
	)
	switch {
	case isForeignKeyViolation(err):
		return ErrParticipantMissing
	case isUniqueViolation(err):
		return ErrDuplicate
	case err != nil:
		return fmt.Errorf("申込の作成に失敗しました: %w", err)
	}

	err = tx.QueryRowContext(ctx,
		`SELECT id, first_name, last_initial FROM participants WHERE id::text = $1`,
		signup.ParticipantID,
	).Scan(&signup.Participant.ID, &signup.Participant.FirstName, &signup.Participant.LastInitial)
	if err != nil {
		return fmt.Errorf("参加者情報の取得に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDの申込を削除する。
func (r *PostgresSignupRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM signups WHERE id::text = $1`, id)
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
func (r *PostgresSignupRepo) ListByDateRange(ctx context.Context, from, to string) ([]*model.Signup, error) {
	return r.list(ctx,
		pgSignupSelect+` WHERE s.date BETWEEN $1::date AND $2::date ORDER BY s.date ASC, s.seq ASC`,
		from, to,
	)
}

// ListByParticipant は参加者の申込を日付昇順で返す。
func (r *PostgresSignupRepo) ListByParticipant(ctx context.Context, participantID string) ([]*model.Signup, error) {
	return r.list(ctx,
		pgSignupSelect+` WHERE s.participant_id::text = $1 ORDER BY s.date ASC`,
		participantID,
	)
}

// DeleteAll は全申込を削除し、削除件数を返す。
func (r *PostgresSignupRepo) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM signups`)
	if err != nil {
		return 0, fmt.Errorf("全申込の削除に失敗しました: %w", err)
	}
	return result.RowsAffected()
}

// DeleteBefore はbeforeより前の日付の申込を削除し、削除件数を返す。
func (r *PostgresSignupRepo) DeleteBefore(ctx context.Context, before string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM signups WHERE date < $1::date`, before)
	if err != nil {
		return 0, fmt.Errorf("過去の申込の削除に失敗しました: %w", err)
	}
	return result.RowsAffected()
}
