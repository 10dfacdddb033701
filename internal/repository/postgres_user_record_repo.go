package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/authdemo/internal/model"
)

// PostgresUserRecordRepo はPostgreSQLのJSONB列をドキュメントストアとして使用するユーザーリポジトリ。
// documentsテーブルは(collection, id)を主キーとし、dataにドキュメント本体を保持する。
type PostgresUserRecordRepo struct {
	db         *sql.DB
	collection string
}

// NewPostgresUserRecordRepo はPostgresUserRecordRepoを生成する。
func NewPostgresUserRecordRepo(db *sql.DB, collection string) *PostgresUserRecordRepo {
	return &PostgresUserRecordRepo{db: db, collection: collection}
}

// Get は指定UIDのユーザードキュメントを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRecordRepo) Get(ctx context.Context, uid string) (*model.UserRecord, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		r.collection, uid,
	).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user record: %w", err)
	}

	return decodeRecord(uid, data)
}

// Upsert はパッチをJSONBの||演算子でトップレベルマージする。
// INSERT ON CONFLICTの1文で行うため、行ロック下で既存ドキュメントに対して適用される。
func (r *PostgresUserRecordRepo) Upsert(ctx context.Context, uid string, patch model.UserRecordPatch) error {
	doc, err := encodePatch(uid, patch)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, created_at, updated_at)
		 VALUES ($1, $2, $3::jsonb, now(), now())
		 ON CONFLICT (collection, id) DO UPDATE SET
		     data = documents.data || EXCLUDED.data,
		     updated_at = now()`,
		r.collection, uid, string(doc),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user record: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserRecordStore = (*PostgresUserRecordRepo)(nil)
