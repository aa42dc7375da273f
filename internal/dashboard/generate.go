// Package dashboard renders Grafana dashboards for the recorder's archives.
package dashboard

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"droneops-console/internal/config"
)

//go:embed templates/*.json.tmpl
var templates embed.FS

// DefaultTable is the GreptimeDB table used when the recorder config names none.
const DefaultTable = "drone_telemetry"

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type data struct {
	Table string
}

// Render writes one dashboard per embedded template to outDir. Datasource
// UIDs come from GREPTIMEDB_DATASOURCE_UID and SQLITE_DATASOURCE_UID.
func Render(outDir string, cfg config.GreptimeConfig) error {
	d := data{Table: cfg.Table}
	if d.Table == "" {
		d.Table = DefaultTable
	}
	if !identifier.MatchString(d.Table) {
		return fmt.Errorf("dashboard: invalid table name %q", d.Table)
	}

	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}

	names, err := fs.Glob(templates, "templates/*.json.tmpl")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, name := range names {
		t, err := template.New(filepath.Base(name)).Funcs(funcMap).ParseFS(templates, name)
		if err != nil {
			return err
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(name), ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := t.Execute(f, d); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
