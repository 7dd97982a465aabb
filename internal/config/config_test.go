package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Hsinwei-29/mes/internal/mes/entity"
	"github.com/Hsinwei-29/mes/internal/mes/reconcile"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown timeout = %v", cfg.Server.ShutdownTimeout)
	}
	if len(cfg.Inventory.PartTypes) != 4 {
		t.Errorf("part types = %d, want built-in 4", len(cfg.Inventory.PartTypes))
	}
	if cfg.Audit.MaxEntries != 500 {
		t.Errorf("audit max = %d", cfg.Audit.MaxEntries)
	}
	opts := cfg.ShortageOptions()
	if opts.PrefixLength != 10 || opts.StockBasis != reconcile.StockAllStages {
		t.Errorf("shortage options = %+v", opts)
	}
	if f := cfg.WorkOrderFilter(); f.IDPrefix != "10000" || !f.NumericOnly {
		t.Errorf("work order filter = %+v", f)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("MES_CASTING_FILE", "/srv/inv.xlsx")
	cfg, err := Load(writeConfig(t, "auth:\n  jwt_secret: file\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("jwt secret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Sources.CastingFile != "/srv/inv.xlsx" {
		t.Errorf("casting file = %q", cfg.Sources.CastingFile)
	}
}

func TestPartTypesFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
inventory:
  part_types:
    - name: 底座
      code: base
      sheet: 1
      stages:
        - { label: 素材, column: 2, role: raw }
        - { label: 成品, column: 3, role: finished }
        - { label: 總數, column: 4, role: total }
picking:
  fallbacks:
    pending: 7
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Inventory.PartTypes) != 1 || cfg.Inventory.PartTypes[0].Stages[1].Role != entity.RoleFinished {
		t.Errorf("part types = %+v", cfg.Inventory.PartTypes)
	}
	for _, col := range cfg.PickingColumns() {
		if col.Key == "pending" && col.Fallback != 7 {
			t.Errorf("pending fallback = %d, want 7", col.Fallback)
		}
	}
}

func TestValidateRejectsBadPartType(t *testing.T) {
	_, err := Load(writeConfig(t, `
inventory:
  part_types:
    - name: 底座
      sheet: 1
      stages:
        - { label: 素材, column: 2, role: raw }
        - { label: 素材, column: 3, role: finished }
        - { label: 總數, column: 4, role: total }
`))
	if !errors.Is(err, entity.ErrInvalidPartType) {
		t.Errorf("err = %v, want ErrInvalidPartType", err)
	}

	_, err = Load(writeConfig(t, "shortage:\n  stock_basis: nope\n"))
	if err == nil {
		t.Error("expected invalid stock basis error")
	}
}
