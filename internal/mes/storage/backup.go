// Package storage 源工作簿写入前的备份
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// backupName 备份文件名：原名_时间戳.扩展名
func backupName(path string, now time.Time) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s_%s%s", strings.TrimSuffix(base, ext), now.Format("20060102_150405.000"), ext)
}

// LocalBackup 备份到本地目录，只保留最近 Keep 份
type LocalBackup struct {
	Dir  string
	Keep int
	now  func() time.Time
}

// NewLocalBackup 创建本地备份
func NewLocalBackup(dir string, keep int) *LocalBackup {
	return &LocalBackup{Dir: dir, Keep: keep, now: time.Now}
}

// Backup 复制文件到备份目录，返回备份路径
func (b *LocalBackup) Backup(ctx context.Context, path string) (string, error) {
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	dst := filepath.Join(b.Dir, backupName(path, b.now()))
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create backup: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("copy backup: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close backup: %w", err)
	}

	b.prune(path)
	return dst, nil
}

// prune 删除超出保留数量的旧备份
func (b *LocalBackup) prune(path string) {
	if b.Keep <= 0 {
		return
	}
	base := filepath.Base(path)
	prefix := strings.TrimSuffix(base, filepath.Ext(base)) + "_"
	entries, err := os.ReadDir(b.Dir)
	if err != nil {
		return
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for len(names) > b.Keep {
		os.Remove(filepath.Join(b.Dir, names[0]))
		names = names[1:]
	}
}

// MinIOConfig MinIO 连接参数
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Prefix    string
}

// MinIOBackup 备份到对象存储
type MinIOBackup struct {
	client *minio.Client
	bucket string
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// NewMinIOBackup 创建客户端并确保 bucket 存在
func NewMinIOBackup(ctx context.Context, cfg MinIOConfig, logger *zap.Logger) (*MinIOBackup, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
		logger.Info("MinIO bucket created", zap.String("bucket", cfg.Bucket))
	}

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "backups"
	}
	return &MinIOBackup{client: client, bucket: cfg.Bucket, prefix: prefix, logger: logger, now: time.Now}, nil
}

// Backup 上传文件，返回对象名
func (b *MinIOBackup) Backup(ctx context.Context, path string) (string, error) {
	now := b.now()
	objectName := fmt.Sprintf("%s/%s/%s", b.prefix, now.Format("2006/01/02"), backupName(path, now))
	info, err := b.client.FPutObject(ctx, b.bucket, objectName, path, minio.PutObjectOptions{
		ContentType: xlsxContentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload backup: %w", err)
	}
	b.logger.Debug("Workbook uploaded", zap.String("object", objectName), zap.Int64("size", info.Size))
	return objectName, nil
}
