package dashboard

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"droneops-console/internal/config"
)

func TestRenderMissingEnv(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "")
	t.Setenv("SQLITE_DATASOURCE_UID", "")
	if err := Render(t.TempDir(), config.GreptimeConfig{}); err == nil {
		t.Fatalf("expected error for missing env vars")
	}
}

func TestRenderRejectsBadTable(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "uid1")
	t.Setenv("SQLITE_DATASOURCE_UID", "uid2")
	if err := Render(t.TempDir(), config.GreptimeConfig{Table: "x; DROP TABLE y"}); err == nil {
		t.Fatalf("expected error for invalid table name")
	}
}

func TestRenderSuccess(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "uid1")
	t.Setenv("SQLITE_DATASOURCE_UID", "uid2")

	dir := t.TempDir()
	if err := Render(dir, config.GreptimeConfig{Table: "fleet_telemetry"}); err != nil {
		t.Fatalf("render failed: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "fleet-telemetry.json"))
	if err != nil {
		t.Fatalf("read dashboard: %v", err)
	}
	if !strings.Contains(string(b), "uid1") {
		t.Fatalf("greptime uid not rendered")
	}
	if !strings.Contains(string(b), "FROM fleet_telemetry") {
		t.Fatalf("table name not rendered")
	}
	if !json.Valid(b) {
		t.Fatalf("telemetry dashboard is not valid JSON")
	}

	b, err = os.ReadFile(filepath.Join(dir, "fleet-archive.json"))
	if err != nil {
		t.Fatalf("read archive dashboard: %v", err)
	}
	if !strings.Contains(string(b), "uid2") {
		t.Fatalf("sqlite uid not rendered")
	}
	if !json.Valid(b) {
		t.Fatalf("archive dashboard is not valid JSON")
	}
}
