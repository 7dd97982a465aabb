package main

import (
	"fmt"
	"os"

	"github.com/Hsinwei-29/mes/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "mes",
		Short:        "铸件库存、工单与缺料看板",
		Version:      fmt.Sprintf("%s (%s)", Version, BuildTime),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径（默认 ./configs/config.yaml）")

	load := func() (*config.Config, *zap.Logger, error) {
		// 加载 .env 文件，不存在时直接使用环境变量
		_ = godotenv.Load()

		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
		zapLogger, err := initLogger(cfg.Log)
		if err != nil {
			return nil, nil, fmt.Errorf("init logger: %w", err)
		}
		return cfg, zapLogger, nil
	}

	root.AddCommand(newServeCmd(load), newExportCmd(load), newWarmCmd(load))
	return root
}

type loader func() (*config.Config, *zap.Logger, error)

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}
