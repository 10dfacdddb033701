package repository

import (
	"encoding/json"
	"fmt"

	"github.com/hitoshi/authdemo/internal/model"
)

// encodePatch はパッチをマージ用のJSONオブジェクトに変換する。
// nilフィールドはomitemptyにより出力されず、既存値の保持につながる。
func encodePatch(uid string, patch model.UserRecordPatch) ([]byte, error) {
	if uid == "" {
		return nil, fmt.Errorf("uid is required")
	}
	if patch.IsEmpty() {
		return nil, fmt.Errorf("empty patch for uid %s", uid)
	}
	b, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode patch: %w", err)
	}
	return b, nil
}

// decodeRecord は保存済みJSONドキュメントをUserRecordに変換する。
// 旧バージョンで書き込まれたuidなしドキュメントにはキーのuidを補う。
func decodeRecord(uid string, data []byte) (*model.UserRecord, error) {
	var rec model.UserRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode user record %s: %w", uid, err)
	}
	if rec.UID == "" {
		rec.UID = uid
	}
	return &rec, nil
}
