package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/Hsinwei-29/mes/internal/mes/auth"
	"github.com/Hsinwei-29/mes/internal/mes/handler"
	"github.com/Hsinwei-29/mes/internal/mes/notify"
	"github.com/Hsinwei-29/mes/internal/middleware"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, zapLogger, err := load()
			if err != nil {
				return err
			}
			defer zapLogger.Sync()

			zapLogger.Info("Starting mes service",
				zap.String("version", Version),
				zap.String("build_time", BuildTime),
			)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, zapLogger)
			if err != nil {
				return err
			}
			defer a.close()

			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is required")
			}
			users, err := auth.OpenUserStore(cfg.Auth.UsersFile, zapLogger)
			if err != nil {
				return err
			}
			authSvc := auth.NewAuthService(users, auth.TokenOptions{
				Secret: cfg.Auth.JWTSecret,
				Issuer: cfg.Auth.Issuer,
				Expire: cfg.Auth.JWTExpire,
			}, zapLogger)

			// 变更推送：配置 Redis 时经频道转发到每个实例的本地 Hub
			hub := notify.NewHub(zapLogger)
			var notifier notify.Notifier = hub
			if a.redis != nil {
				rn := notify.NewRedisNotifier(a.redis, cfg.Redis.Channel, zapLogger)
				notifier = rn
				go func() {
					if err := rn.Relay(ctx, hub); err != nil {
						zapLogger.Error("Change event relay stopped", zap.Error(err))
					}
				}()
			}
			a.metrics.GaugeFunc("mes_sse_clients", "Number of connected SSE clients", func() float64 {
				return float64(hub.Count())
			})

			if cfg.Server.WarmOnStart {
				go func() {
					stats := a.services.Sources.Warm()
					zapLogger.Info("Cache warmed",
						zap.Int("inventory_rows", stats.InventoryRows),
						zap.Int("models", stats.Models),
						zap.Int("work_orders", stats.WorkOrders),
						zap.Int("shortage_lines", stats.ShortageLines),
					)
				}()
			}

			if cfg.Server.Mode == "release" {
				gin.SetMode(gin.ReleaseMode)
			}

			router := gin.New()
			router.Use(gin.Recovery())
			router.Use(middleware.Logger(zapLogger))
			router.Use(middleware.CORS())
			router.Use(middleware.RequestID())
			// SSE 不能压缩
			router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/v1/sse"})))

			handlers := handler.NewHandlers(a.services, authSvc, hub, notifier, zapLogger)
			handler.RegisterRoutes(router, handlers, cfg.Auth.JWTSecret, a.metrics.Handler())

			srv := &http.Server{
				Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:      router,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: 0, // SSE 长连接
			}

			errCh := make(chan error, 1)
			go func() {
				zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}

			zapLogger.Info("Shutting down server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				zapLogger.Error("Server forced to shutdown", zap.Error(err))
			}

			zapLogger.Info("Server exited")
			return nil
		},
	}
}

func newExportCmd(load loader) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "导出缺料报表",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, zapLogger, err := load()
			if err != nil {
				return err
			}
			defer zapLogger.Sync()

			a, err := buildApp(cmd.Context(), cfg, zapLogger)
			if err != nil {
				return err
			}
			defer a.close()

			path, err := a.services.Shortage.ExportTo(out)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "输出文件或目录（默认当前目录）")
	return cmd
}

func newWarmCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "warm",
		Short: "加载全部源文件并输出记录数",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, zapLogger, err := load()
			if err != nil {
				return err
			}
			defer zapLogger.Sync()

			a, err := buildApp(cmd.Context(), cfg, zapLogger)
			if err != nil {
				return err
			}
			defer a.close()

			stats := a.services.Sources.Warm()
			diag := a.services.Shortage.Compute().Diagnostics
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "inventory rows:     %d\n", stats.InventoryRows)
			fmt.Fprintf(w, "models:             %d\n", stats.Models)
			fmt.Fprintf(w, "work orders:        %d\n", stats.WorkOrders)
			fmt.Fprintf(w, "picking lines:      %d\n", stats.PickingLines)
			fmt.Fprintf(w, "shortage lines:     %d\n", stats.ShortageLines)
			fmt.Fprintf(w, "prefix collisions:  %d\n", len(diag.Collisions))
			fmt.Fprintf(w, "unmatched material: %d\n", diag.UnmatchedMaterial)
			return nil
		},
	}
}
