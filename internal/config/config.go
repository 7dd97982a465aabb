package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Hsinwei-29/mes/internal/mes/entity"
	"github.com/Hsinwei-29/mes/internal/mes/extractor"
	"github.com/Hsinwei-29/mes/internal/mes/ident"
	"github.com/Hsinwei-29/mes/internal/mes/reconcile"
	"github.com/Hsinwei-29/mes/internal/mes/workbook"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Inventory InventoryConfig `mapstructure:"inventory"`
	WorkOrder WorkOrderConfig `mapstructure:"workorder"`
	Picking   PickingConfig   `mapstructure:"picking"`
	Shortage  ShortageConfig  `mapstructure:"shortage"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Backup    BackupConfig    `mapstructure:"backup"`
	Feishu    FeishuConfig    `mapstructure:"feishu"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	WarmOnStart     bool          `mapstructure:"warm_on_start"`
}

// SourcesConfig 三份源文件
type SourcesConfig struct {
	CastingFile       string `mapstructure:"casting_file"`
	WorkOrderFile     string `mapstructure:"workorder_file"`
	PickingFile       string `mapstructure:"picking_file"`
	WorkOrderEncoding string `mapstructure:"workorder_encoding"` // CSV 导出时的编码：big5 / gbk / utf-8
}

type InventoryConfig struct {
	ModelSuffixes []string                `mapstructure:"model_suffixes"`
	PartTypes     []entity.PartTypeConfig `mapstructure:"part_types"`
}

type WorkOrderConfig struct {
	IDPrefix        string   `mapstructure:"id_prefix"`
	NumericOnly     bool     `mapstructure:"numeric_only"`
	SkipSheets      []int    `mapstructure:"skip_sheets"`
	SkipSheetNames  []string `mapstructure:"skip_sheet_names"`
	StatusBlacklist []string `mapstructure:"status_blacklist"`
	CustomerMaxLen  int      `mapstructure:"customer_max_len"`
}

// PickingConfig 拨料表列位置覆盖：逻辑列 -> 0-based 列号
type PickingConfig struct {
	Fallbacks map[string]int `mapstructure:"fallbacks"`
}

type ShortageConfig struct {
	PrefixLength int    `mapstructure:"prefix_length"`
	StockBasis   string `mapstructure:"stock_basis"`
}

type AuditConfig struct {
	File       string `mapstructure:"file"`
	MaxEntries int    `mapstructure:"max_entries"`
}

type AuthConfig struct {
	UsersFile string        `mapstructure:"users_file"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTExpire time.Duration `mapstructure:"jwt_expire"`
	Issuer    string        `mapstructure:"issuer"`
}

// DatabaseConfig 审计归档库，Host 为空时不启用
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig 多实例推送，Host 为空时只用本地 SSE
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
	Channel  string `mapstructure:"channel"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// BackupConfig 写入前备份：minio / local / none
type BackupConfig struct {
	Mode   string `mapstructure:"mode"`
	Dir    string `mapstructure:"dir"`
	Keep   int    `mapstructure:"keep"`
	Prefix string `mapstructure:"prefix"`
}

type FeishuConfig struct {
	AppID      string `mapstructure:"app_id"`
	AppSecret  string `mapstructure:"app_secret"`
	ChatID     string `mapstructure:"chat_id"`
	WebhookURL string `mapstructure:"webhook_url"`
	Link       string `mapstructure:"link"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load 读取配置，path 为空时在 ./configs 与 . 查找 config.yaml
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// 配置文件不存在，使用默认值与环境变量
	}

	bindEnvVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(cfg.Inventory.PartTypes) == 0 {
		cfg.Inventory.PartTypes = entity.DefaultPartTypes()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.warm_on_start", true)

	v.SetDefault("sources.casting_file", "data/鑄件盤點資料.xlsx")
	v.SetDefault("sources.workorder_file", "data/工單總表.xlsx")
	v.SetDefault("sources.picking_file", "data/成品撥料.xlsx")
	v.SetDefault("sources.workorder_encoding", "big5")

	v.SetDefault("inventory.model_suffixes", ident.DefaultModelSuffixes)

	wo := extractor.DefaultWorkOrderFilter()
	v.SetDefault("workorder.id_prefix", wo.IDPrefix)
	v.SetDefault("workorder.numeric_only", wo.NumericOnly)
	v.SetDefault("workorder.skip_sheets", wo.SkipSheets)
	v.SetDefault("workorder.skip_sheet_names", wo.SkipSheetNames)
	v.SetDefault("workorder.status_blacklist", wo.StatusBlacklist)
	v.SetDefault("workorder.customer_max_len", wo.CustomerMaxLen)

	v.SetDefault("shortage.prefix_length", ident.DefaultPrefixLength)
	v.SetDefault("shortage.stock_basis", string(reconcile.StockAllStages))

	v.SetDefault("audit.file", "data/audit_log.json")
	v.SetDefault("audit.max_entries", 500)

	v.SetDefault("auth.users_file", "data/users.json")
	v.SetDefault("auth.jwt_expire", 24*time.Hour)
	v.SetDefault("auth.issuer", "mes")

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("backup.mode", "local")
	v.SetDefault("backup.dir", "data/backup")
	v.SetDefault("backup.keep", 30)
	v.SetDefault("backup.prefix", "backups")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

func bindEnvVariables(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.mode", "SERVER_MODE")

	// Sources
	v.BindEnv("sources.casting_file", "MES_CASTING_FILE")
	v.BindEnv("sources.workorder_file", "MES_WORKORDER_FILE")
	v.BindEnv("sources.picking_file", "MES_PICKING_FILE")

	// Database
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// MinIO
	v.BindEnv("minio.endpoint", "MINIO_ENDPOINT")
	v.BindEnv("minio.access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("minio.secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("minio.bucket", "MINIO_BUCKET")

	// JWT
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")

	// Feishu
	v.BindEnv("feishu.app_id", "FEISHU_APP_ID")
	v.BindEnv("feishu.app_secret", "FEISHU_APP_SECRET")
	v.BindEnv("feishu.chat_id", "FEISHU_CHAT_ID")
	v.BindEnv("feishu.webhook_url", "FEISHU_WEBHOOK_URL")
}

// Validate 启动时校验，配置错误直接失败
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for _, p := range c.Inventory.PartTypes {
		if err := p.Validate(); err != nil {
			return err
		}
		for _, key := range []string{p.Name, p.Code} {
			if key == "" {
				continue
			}
			if seen[key] {
				return fmt.Errorf("%w: duplicate part type %q", entity.ErrInvalidPartType, key)
			}
			seen[key] = true
		}
	}
	switch reconcile.StockBasis(c.Shortage.StockBasis) {
	case reconcile.StockAllStages, reconcile.StockFinished:
	default:
		return fmt.Errorf("invalid shortage.stock_basis %q", c.Shortage.StockBasis)
	}
	if c.Shortage.PrefixLength <= 0 {
		return fmt.Errorf("invalid shortage.prefix_length %d", c.Shortage.PrefixLength)
	}
	switch c.Backup.Mode {
	case "minio", "local", "none", "":
	default:
		return fmt.Errorf("invalid backup.mode %q", c.Backup.Mode)
	}
	return nil
}

// WorkOrderFilter 工单过滤规则
func (c *Config) WorkOrderFilter() extractor.WorkOrderFilter {
	w := c.WorkOrder
	return extractor.WorkOrderFilter{
		IDPrefix:        w.IDPrefix,
		NumericOnly:     w.NumericOnly,
		SkipSheets:      w.SkipSheets,
		SkipSheetNames:  w.SkipSheetNames,
		StatusBlacklist: w.StatusBlacklist,
		CustomerMaxLen:  w.CustomerMaxLen,
	}
}

// PickingColumns 默认列规则叠加配置中的列位置
func (c *Config) PickingColumns() []workbook.ColumnSpec {
	cols := extractor.DefaultPickingColumns()
	for i := range cols {
		if idx, ok := c.Picking.Fallbacks[cols[i].Key]; ok {
			cols[i].Fallback = idx
		}
	}
	return cols
}

// ShortageOptions 缺料计算参数
func (c *Config) ShortageOptions() reconcile.Options {
	return reconcile.Options{
		PrefixLength: c.Shortage.PrefixLength,
		StockBasis:   reconcile.StockBasis(c.Shortage.StockBasis),
	}
}
