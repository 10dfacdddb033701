package database

import (
	"path/filepath"
	"testing"
)

// TestOpen_ReturnsDBForAnyURL はsql.Openは接続を試行しないため、
// 不正なURLでもDBオブジェクトが返ることを検証する。
// 実際の接続確認にはPingが必要。
func TestOpen_ReturnsDBForAnyURL(t *testing.T) {
	db, err := Open("postgres://invalid")
	if err != nil {
		t.Fatalf("Open returned unexpected error: %v", err)
	}
	if db == nil {
		t.Fatal("expected non-nil db")
	}
	defer db.Close()
}

// TestOpenSQLite_CreatesUsableDatabase はSQLiteファイルが作成され、クエリを実行できることを検証する。
func TestOpenSQLite_CreatesUsableDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authdemo.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite returned unexpected error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	var got string
	if err := db.QueryRow(`SELECT json_patch('{"a":1}', '{"b":2}')`).Scan(&got); err != nil {
		t.Fatalf("json_patch query failed: %v", err)
	}
	if got != `{"a":1,"b":2}` {
		t.Errorf("json_patch = %s, want %s", got, `{"a":1,"b":2}`)
	}
}

// TestOpenSQLite_LimitsOpenConnections は書き込み競合を避けるため接続数が1に制限されることを検証する。
func TestOpenSQLite_LimitsOpenConnections(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "authdemo.db"))
	if err != nil {
		t.Fatalf("OpenSQLite returned unexpected error: %v", err)
	}
	defer db.Close()

	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}
}
