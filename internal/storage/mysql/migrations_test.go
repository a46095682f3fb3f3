package mysql

import (
	"strings"
	"testing"
)

func TestLoadMigrationFilesReadsEmbeddedSchema(t *testing.T) {
	files, err := loadMigrationFiles()
	if err != nil {
		t.Fatalf("读取内嵌迁移失败: %v", err)
	}
	if len(files) == 0 {
		t.Fatalf("expected at least one embedded migration")
	}

	first := files[0]
	if first.version != "0001" {
		t.Fatalf("expected version 0001 first, got %s", first.version)
	}
	if len(first.statements) != 1 {
		t.Fatalf("expected a single statement, got %d", len(first.statements))
	}
	if !strings.Contains(first.statements[0], "wallet_users") {
		t.Fatalf("wallet table migration missing, statement: %q", first.statements[0])
	}
}

func TestSplitSQLStatementsSkipsComments(t *testing.T) {
	statements := splitSQLStatements("-- 注释\nCREATE TABLE a (id INT);\n-- 孤立注释\n;")
	if len(statements) != 1 {
		t.Fatalf("expected exactly one statement, got %d: %v", len(statements), statements)
	}
	if !strings.Contains(statements[0], "CREATE TABLE a") {
		t.Fatalf("unexpected statement %q", statements[0])
	}
}

func TestParseMigrationVersion(t *testing.T) {
	cases := map[string]string{
		"0001_create_wallet_users.sql": "0001",
		"0002.sql":                     "0002",
		"plain":                        "plain",
	}
	for name, want := range cases {
		if got := parseMigrationVersion(name); got != want {
			t.Fatalf("%s: expected %s, got %s", name, want, got)
		}
	}
}
