package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMigrationsDirHoldsGooseFiles(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join(MigrationsDir(), "*.sql"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migrations found in %s", MigrationsDir())
	}
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			t.Fatal(err)
		}
		src := string(data)
		if !strings.Contains(src, "-- +goose Up") || !strings.Contains(src, "-- +goose Down") {
			t.Errorf("%s is missing goose annotations", filepath.Base(m))
		}
	}
}
