package recorder

import (
	"errors"

	"droneops-console/internal/config"
)

// Open builds the writers enabled in cfg. It returns nil when none are.
func Open(cfg config.RecorderConfig) (*MultiWriter, error) {
	var ws []EventWriter
	fail := func(err error) (*MultiWriter, error) {
		return nil, errors.Join(err, NewMultiWriter(ws...).Close())
	}
	if cfg.File != "" {
		fw, err := NewFileWriter(cfg.File)
		if err != nil {
			return fail(err)
		}
		ws = append(ws, fw)
	}
	if cfg.SQLitePath != "" {
		sw, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return fail(err)
		}
		ws = append(ws, sw)
	}
	if cfg.Greptime.Host != "" {
		gw, err := NewGreptimeWriter(cfg.Greptime)
		if err != nil {
			return fail(err)
		}
		ws = append(ws, gw)
	}
	if len(ws) == 0 {
		return nil, nil
	}
	return NewMultiWriter(ws...), nil
}
