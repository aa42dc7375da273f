package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"droneops-console/internal/config"
	"droneops-console/internal/event"
	"droneops-console/internal/logging"
)

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeWriter stores drone telemetry in GreptimeDB.
type GreptimeWriter struct {
	client  greptimeClient
	table   string
	timeout time.Duration
	log     *slog.Logger

	mu     sync.Mutex
	merger rowMerger
}

// NewGreptimeWriter connects to the GreptimeDB gRPC endpoint in cfg. The table
// is created by the first write.
func NewGreptimeWriter(cfg config.GreptimeConfig) (*GreptimeWriter, error) {
	gcfg := greptime.NewConfig(cfg.Host).WithPort(cfg.Port).WithDatabase(cfg.Database)
	client, err := greptime.NewClient(gcfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	return &GreptimeWriter{
		client:  client,
		table:   cfg.Table,
		timeout: 5 * time.Second,
		log:     logging.FromContext(context.Background()).With("component", "greptime"),
	}, nil
}

// WriteEvent stores ev if it is a telemetry event.
func (w *GreptimeWriter) WriteEvent(ev event.Event) error {
	return w.WriteEvents([]event.Event{ev})
}

// WriteEvents stores the telemetry events among evs in one request.
func (w *GreptimeWriter) WriteEvents(evs []event.Event) error {
	w.mu.Lock()
	rows := w.merger.rows(evs)
	w.mu.Unlock()
	if len(rows) == 0 {
		return nil
	}

	tbl, err := w.newTable()
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := tbl.AddRow(r.DroneID, r.MissionID, r.Lat, r.Lon, r.Alt, r.Battery, r.Speed, r.Status, r.Timestamp); err != nil {
			return fmt.Errorf("greptime row: %w", err)
		}
	}

	timeout := w.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		if w.log != nil {
			w.log.Warn("greptime write failed", "rows", len(rows), "err", err)
		}
		return err
	}
	if w.log != nil {
		w.log.Debug("greptime wrote rows", "rows", len(rows))
	}
	return nil
}

func (w *GreptimeWriter) newTable() (*table.Table, error) {
	name := w.table
	if name == "" {
		name = "drone_telemetry"
	}
	tbl, err := table.New(name)
	if err != nil {
		return nil, err
	}
	cols := []struct {
		name string
		tag  bool
		typ  types.ColumnType
	}{
		{"drone_id", true, types.STRING},
		{"mission_id", true, types.STRING},
		{"lat", false, types.FLOAT64},
		{"lon", false, types.FLOAT64},
		{"alt", false, types.FLOAT64},
		{"battery", false, types.FLOAT64},
		{"speed", false, types.FLOAT64},
		{"status", false, types.STRING},
	}
	for _, c := range cols {
		if c.tag {
			err = tbl.AddTagColumn(c.name, c.typ)
		} else {
			err = tbl.AddFieldColumn(c.name, c.typ)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	return tbl, nil
}
