package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Hsinwei-29/mes/internal/mes/testutil"
	"go.uber.org/zap"
)

func TestLocalBackupCopiesAndPrunes(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "鑄件盤點資料.xlsx")
	if err := os.WriteFile(src, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := NewLocalBackup(filepath.Join(dir, "backup"), 2)
	base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.Local)
	var last string
	for i := 0; i < 3; i++ {
		b.now = func() time.Time { return base.Add(time.Duration(i) * time.Second) }
		path, err := b.Backup(context.Background(), src)
		if err != nil {
			t.Fatalf("backup: %v", err)
		}
		last = path
	}

	data, err := os.ReadFile(last)
	if err != nil || string(data) != "v1" {
		t.Errorf("backup content mismatch: %q %v", data, err)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "backup"))
	if len(entries) != 2 {
		t.Errorf("expected 2 backups kept, got %d", len(entries))
	}
}

func TestLocalBackupMissingSource(t *testing.T) {
	b := NewLocalBackup(t.TempDir(), 0)
	if _, err := b.Backup(context.Background(), "/nonexistent/file.xlsx"); err == nil {
		t.Errorf("expected error for missing source")
	}
}

func TestMinIOBackup(t *testing.T) {
	testutil.LoadEnv()
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	b, err := NewMinIOBackup(ctx, MinIOConfig{
		Endpoint:  endpoint,
		AccessKey: testutil.GetEnv("MINIO_ACCESS_KEY", "minioadmin"),
		SecretKey: testutil.GetEnv("MINIO_SECRET_KEY", "minioadmin"),
		Bucket:    testutil.GetEnv("MINIO_BUCKET", "mes-test"),
	}, zap.NewNop())
	if err != nil {
		t.Skipf("minio unavailable: %v", err)
	}

	src := filepath.Join(t.TempDir(), "inv.xlsx")
	os.WriteFile(src, []byte("data"), 0o644)
	name, err := b.Backup(ctx, src)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if filepath.Ext(name) != ".xlsx" {
		t.Errorf("unexpected object name %s", name)
	}
}
