package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/teeup/internal/model"
)

// コンパイル時にインターフェースの実装を検証する。
var _ ParticipantRepository = (*PostgresParticipantRepo)(nil)

// PostgresParticipantRepo はPostgreSQLを使用した参加者リポジトリ。
type PostgresParticipantRepo struct {
	db *sql.DB
}

// NewPostgresParticipantRepo はPostgresParticipantRepoを生成する。
func NewPostgresParticipantRepo(db *sql.DB) *PostgresParticipantRepo {
	return &PostgresParticipantRepo{db: db}
}

const pgParticipantColumns = `id, first_name, last_initial, contact, created_at, updated_at`

func scanPostgresParticipant(row interface{ Scan(...any) error }) (*model.Participant, error) {
	p := &model.Participant{}
	if err := row.Scan(&p.ID, &p.FirstName, &p.LastInitial, &p.Contact, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

// FindByID は指定IDの参加者を取得する。見つからない場合はnilを返す。
func (r *PostgresParticipantRepo) FindByID(ctx context.Context, id string) (*model.Participant, error) {
	p, err := scanPostgresParticipant(r.db.QueryRowContext(ctx,
		`SELECT `+pgParticipantColumns+` FROM participants WHERE id::text = $1`,
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
func (r *PostgresParticipantRepo) FindByName(ctx context.Context, firstName, lastInitial string) (*model.Participant, error) {
	p, err := scanPostgresParticipant(r.db.QueryRowContext(ctx,
		`SELECT `+pgParticipantColumns+` FROM participants WHERE first_name = $1 AND last_initial = $2`,
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
func (r *PostgresParticipantRepo) List(ctx context.Context) ([]*model.Participant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+pgParticipantColumns+` FROM participants ORDER BY first_name ASC, last_initial ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("参加者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var participants []*model.Participant
	for rows.Next() {
		p, err := scanPostgresParticipant(rows)
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

// CreateWithLimit は名簿単位のアドバイザリロックを取得したトランザクション内で
// 件数確認と挿入を行う。ロックはコミットまたはロールバックで解放される。
func (r *PostgresParticipantRepo) CreateWithLimit(ctx context.Context, p *model.Participant, limit int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "participants"); err != nil {
		return fmt.Errorf("名簿ロックの取得に失敗しました: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM participants`).Scan(&count); err != nil {
		return fmt.Errorf("参加者数の取得に失敗しました: %w", err)
	}
	if count >= limit {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM participants WHERE first_name = $1 AND last_initial = $2)`,
			p.FirstName, p.LastInitial,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("同名参加者の確認に失敗しました: %w", err)
		}
		if exists {
			return ErrDuplicate
		}
		return ErrRosterFull
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO participants (id, first_name, last_initial, contact, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.FirstName, p.LastInitial, p.Contact, p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("参加者の作成に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// Update は参加者の名前・連絡先を上書きする。
func (r *PostgresParticipantRepo) Update(ctx context.Context, p *model.Participant) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE participants
		 SET first_name = $2, last_initial = $3, contact = $4, updated_at = $5
		 WHERE id::text = $1`,
		p.ID, p.FirstName, p.LastInitial, p.Contact, p.UpdatedAt,
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
func (r *PostgresParticipantRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM participants WHERE id::text = $1`, id)
	if err != nil {
		return false, fmt.Errorf("参加者の削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}
