package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/teeup/internal/model"
)

var _ ParticipantRepository = (*SQLiteParticipantRepo)(nil)

// sqliteTimeLayout はSQLiteのTEXT列に保存する日時の形式。
const sqliteTimeLayout = time.RFC3339Nano

// SQLiteParticipantRepo はSQLiteを使用した参加者リポジトリ。
type SQLiteParticipantRepo struct {
	db *sql.DB
}

// NewSQLiteParticipantRepo はSQLiteParticipantRepoを生成する。
func NewSQLiteParticipantRepo(db *sql.DB) *SQLiteParticipantRepo {
	return &SQLiteParticipantRepo{db: db}
}

const liteParticipantColumns = `id, first_name, last_initial, contact, created_at, updated_at`

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("日時の解析に失敗しました: %q: %w", s, err)
	}
	return t, nil
}

func scanSQLiteParticipant(row interface{ Scan(...any) error }) (*model.Participant, error) {
	p := &model.Participant{}
	var createdAt, updatedAt string
	if err := row.Scan(&p.ID, &p.FirstName, &p.LastInitial, &p.Contact, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

// FindByID は指定IDの参加者を取得する。見つからない場合はnilを返す。
func (r *SQLiteParticipantRepo) FindByID(ctx context.Context, id string) (*model.Participant, error) {
	p, err := scanSQLiteParticipant(r.db.QueryRowContext(ctx,
		`SELECT `+liteParticipantColumns+` FROM participants WHERE id = ?`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("参加者の取得に失敗しました: %w", err)
	}
	return p, nil
}

// FindByName は名前と姓の頭文字で参加者を検索する。見つからない場合はnilを返す。
func (r *SQLiteParticipantRepo) FindByName(ctx context.Context, firstName, lastInitial string) (*model.Participant, error) {
	p, err := scanSQLiteParticipant(r.db.QueryRowContext(ctx,
		`SELECT `+liteParticipantColumns+` FROM participants WHERE first_name = ? AND last_initial = ?`,
		firstName, lastInitial,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("名前による参加者の検索に失敗しました: %w", err)
	}
	return p, nil
}

// List は全参加者を名前、姓の頭文字の順で返す。
func (r *SQLiteParticipantRepo) List(ctx context.Context) ([]*model.Participant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+liteParticipantColumns+` FROM participants ORDER BY first_name ASC, last_initial ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("参加者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var participants []*model.Participant
	for rows.Next() {
		p, err := scanSQLiteParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("参加者行の読み取りに失敗しました: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("参加者一覧の走査に失敗しました: %w", err)
	}
	return participants, nil
}

// CreateWithLimit は件数条件付きのINSERT 1文で名簿上限の確認と挿入を行う。
// 挿入されなかった場合は、同名の有無で重複か上限超過かを判別して返す。
func (r *SQLiteParticipantRepo) CreateWithLimit(ctx context.Context, p *model.Participant, limit int) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO participants (id, first_name, last_initial, contact, created_at, updated_at)
		 SELECT ?, ?, ?, ?, ?, ?
		 WHERE (SELECT COUNT(*) FROM participants) < ?`,
		p.ID, p.FirstName, p.LastInitial, p.Contact, formatSQLiteTime(p.CreatedAt), formatSQLiteTime(p.UpdatedAt),
		limit,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("参加者の作成に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("作成結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		existing, err := r.FindByName(ctx, p.FirstName, p.LastInitial)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicate
		}
		return ErrRosterFull
	}
	return nil
}

// Update は参加者の名前・連絡先を上書きする。
func (r *SQLiteParticipantRepo) Update(ctx context.Context, p *model.Participant) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE participants SET first_name = ?, last_initial = ?, contact = ?, updated_at = ? WHERE id = ?`,
		p.FirstName, p.LastInitial, p.Contact, formatSQLiteTime(p.UpdatedAt), p.ID,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("参加者の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete は指定IDの参加者を削除する。関連する申込はCASCADE削除される。
func (r *SQLiteParticipantRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM participants WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("参加者の削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}
