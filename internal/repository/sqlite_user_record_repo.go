package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/authdemo/internal/model"
)

const sqliteDocumentsSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	data TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (collection, id)
);
`

// SQLiteUserRecordRepo はSQLiteのJSON1拡張をドキュメントストアとして使用するユーザーリポジトリ。
// 単一プロセスの開発環境やテストで使用する。
type SQLiteUserRecordRepo struct {
	db         *sql.DB
	collection string
}

// NewSQLiteUserRecordRepo はSQLiteUserRecordRepoを生成し、必要なテーブルを作成する。
func NewSQLiteUserRecordRepo(db *sql.DB, collection string) (*SQLiteUserRecordRepo, error) {
	if db == nil {
		return nil, errors.New("sqlite user record repo: db is nil")
	}
	if _, err := db.Exec(sqliteDocumentsSchema); err != nil {
		return nil, fmt.Errorf("sqlite user record repo create schema: %w", err)
	}
	return &SQLiteUserRecordRepo{db: db, collection: collection}, nil
}

// Get は指定UIDのユーザードキュメントを取得する。見つからない場合はnilを返す。
func (r *SQLiteUserRecordRepo) Get(ctx context.Context, uid string) (*model.UserRecord, error) {
	var data string
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		r.collection, uid,
	).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user record: %w", err)
	}

	return decodeRecord(uid, []byte(data))
}

// Upsert はパッチをjson_patchでマージする。
// パッチにnullは含まれないため、json_patchによるキー削除は発生しない。
func (r *SQLiteUserRecordRepo) Upsert(ctx context.Context, uid string, patch model.UserRecordPatch) error {
	doc, err := encodePatch(uid, patch)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, created_at, updated_at)
		 VALUES (?, ?, json(?), ?, ?)
		 ON CONFLICT (collection, id) DO UPDATE SET
		     data = json_patch(documents.data, excluded.data),
		     updated_at = excluded.updated_at`,
		r.collection, uid, string(doc), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user record: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserRecordStore = (*SQLiteUserRecordRepo)(nil)
