// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/authdemo/internal/model"
)

// UserRecordStore はユーザードキュメントの永続化インターフェース。
// ドキュメントはユーザーID（IdPのsubject）をキーとして保持する。
type UserRecordStore interface {
	// Get は指定UIDのユーザードキュメントを取得する。見つからない場合はnilを返す。
	Get(ctx context.Context, uid string) (*model.UserRecord, error)

	// Upsert はパッチをトップレベルのフィールド単位でマージする。
	// ドキュメントが存在しない場合はパッチの内容で新規作成する。
	// 読み込みと書き込みを1文で行うため、異なるフィールドへの同時更新は互いを上書きしない。
	Upsert(ctx context.Context, uid string, patch model.UserRecordPatch) error
}
