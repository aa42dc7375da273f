package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"droneops-console/internal/api"
	"droneops-console/internal/config"
	"droneops-console/internal/credentials"
	"droneops-console/internal/logging"
	"droneops-console/internal/session"
)

// app holds what every subcommand shares once the root has loaded config.
type app struct {
	configPath string
	schemaPath string
	output     string
	logLevel   string

	cfg *config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "fleetctl",
		Short:         "DroneOps fleet console",
		Long:          "fleetctl monitors and controls drone missions on a DroneOps registry.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to fleetctl.yaml (default ./fleetctl.yaml if present)")
	root.PersistentFlags().StringVar(&a.schemaPath, "schema", "", "Path to a CUE schema overriding the built-in one")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "table", "Output format: table or yaml")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override log.level")

	root.AddCommand(
		newLoginCmd(a),
		newRegisterCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newMissionsCmd(a),
		newDronesCmd(a),
		newReportsCmd(a),
		newWatchCmd(a),
		newReplayCmd(a),
		newDevRegistryCmd(a),
		newDashboardCmd(a),
		newConfigCmd(a),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath, a.schemaPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg
	a.log = logging.NewWith(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(a.log)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logging.NewContext(ctx, a.log))
	return nil
}

func (a *app) credentials() (*credentials.Store, error) {
	return credentials.NewStore(a.cfg.Credentials.Path)
}

// session builds a session with the shared credentials store and logger.
func (a *app) session(deps session.Deps) (*session.Session, error) {
	creds, err := a.credentials()
	if err != nil {
		return nil, err
	}
	deps.Credentials = creds
	if deps.Logger == nil {
		deps.Logger = a.log
	}
	return session.New(a.cfg, deps)
}

// withAPI runs fn against the REST client of a short-lived session.
func (a *app) withAPI(fn func(*api.Client) error) error {
	sess, err := a.session(session.Deps{})
	if err != nil {
		return err
	}
	defer sess.Close()
	return fn(sess.API())
}
