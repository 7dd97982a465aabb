package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Hsinwei-29/mes/internal/config"
	"github.com/Hsinwei-29/mes/internal/mes/metrics"
	"github.com/Hsinwei-29/mes/internal/mes/repository"
	"github.com/Hsinwei-29/mes/internal/mes/service"
	"github.com/Hsinwei-29/mes/internal/mes/storage"
	"github.com/Hsinwei-29/mes/internal/shared/feishu"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// app 组装后的依赖，close 释放外部连接
type app struct {
	metrics  *metrics.Metrics
	services *service.Services
	redis    *redis.Client
	closers  []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) (*app, error) {
	a := &app{metrics: metrics.New()}

	sources := service.NewSources(service.SourceOptions{
		CastingFile:       cfg.Sources.CastingFile,
		WorkOrderFile:     cfg.Sources.WorkOrderFile,
		PickingFile:       cfg.Sources.PickingFile,
		WorkOrderEncoding: cfg.Sources.WorkOrderEncoding,
		PartTypes:         cfg.Inventory.PartTypes,
		ModelSuffixes:     cfg.Inventory.ModelSuffixes,
		WorkOrderFilter:   cfg.WorkOrderFilter(),
		PickingCols:       cfg.PickingColumns(),
		Shortage:          cfg.ShortageOptions(),
	}, a.metrics, zapLogger)

	deps := service.Deps{
		Sources:   sources,
		AuditFile: repository.NewAuditFileRepository(cfg.Audit.File, cfg.Audit.MaxEntries, zapLogger),
		Observer:  a.metrics,
		Alert: service.AlertOptions{
			ChatID:     cfg.Feishu.ChatID,
			WebhookURL: cfg.Feishu.WebhookURL,
			Link:       cfg.Feishu.Link,
		},
		Logger: zapLogger,
	}

	// 审计归档库（可选）
	if cfg.Database.Host != "" {
		db, err := initDatabase(cfg.Database)
		if err != nil {
			zapLogger.Warn("Audit archive disabled, database unavailable", zap.Error(err))
		} else {
			archive := repository.NewAuditArchiveRepository(db)
			if err := archive.AutoMigrate(); err != nil {
				zapLogger.Warn("AutoMigrate audit archive warning", zap.Error(err))
			}
			deps.AuditArchive = archive
			if sqlDB, err := db.DB(); err == nil {
				a.closers = append(a.closers, func() { sqlDB.Close() })
			}
		}
	}

	backup, err := initBackup(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Warn("Workbook backup disabled", zap.Error(err))
	} else if backup != nil {
		deps.Backup = backup
	}

	if cfg.Feishu.WebhookURL != "" || (cfg.Feishu.AppID != "" && cfg.Feishu.AppSecret != "") {
		deps.Feishu = feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret)
	}

	if cfg.Redis.Host != "" {
		rdb := initRedis(cfg.Redis)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			zapLogger.Warn("Redis unavailable, change events stay local", zap.Error(err))
			rdb.Close()
		} else {
			a.redis = rdb
			a.closers = append(a.closers, func() { rdb.Close() })
		}
	}

	a.services = service.NewServices(deps)
	return a, nil
}

// initBackup 按 backup.mode 选择备份方式，none 返回 nil
func initBackup(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) (service.Backup, error) {
	switch cfg.Backup.Mode {
	case "minio":
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return storage.NewMinIOBackup(initCtx, storage.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
			Prefix:    cfg.Backup.Prefix,
		}, zapLogger)
	case "local", "":
		return storage.NewLocalBackup(cfg.Backup.Dir, cfg.Backup.Keep), nil
	}
	return nil, nil
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}
