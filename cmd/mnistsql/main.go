package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/mnistsql/pkg/config"
	"github.com/ajitpratap0/mnistsql/pkg/logger"
	"github.com/ajitpratap0/mnistsql/pkg/observability"
	"github.com/ajitpratap0/mnistsql/pkg/store"
)

var version = "0.1.0"

// app carries what every command needs once the root command has run.
type app struct {
	v       *viper.Viper
	cfgFile string
	jsonOut bool

	// pprof output files, empty to skip
	cpuProfile string
	memProfile string

	cfg      *config.Config
	log      *zap.Logger
	shutdown []func(context.Context) error
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	a := &app{v: viper.New()}
	root := a.rootCommand()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	a.close()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "mnistsql",
		Short: "Group handwritten digit images by label and store them in SQL",
		Long: `mnistsql reads the MNIST IDX files, groups the images by digit label and
writes them to a SQL table (SQL Server, Postgres, MySQL or SQLite) with optional
gzip compression of each pixel payload. Stored rows can be counted, read back
and exported as PNG folders or IDX files.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "Path to YAML configuration file")
	pf.BoolVar(&a.jsonOut, "json", false, "Print results as JSON")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.String("driver", "", "Database driver (sqlserver, postgres, mysql, sqlite)")
	pf.String("dsn", "", "Database connection string, overrides the database_info fields")
	pf.String("table", "", "Target table name")
	pf.StringVar(&a.cpuProfile, "cpuprofile", "", "Write a CPU profile to this file")
	pf.StringVar(&a.memProfile, "memprofile", "", "Write a heap profile to this file on exit")

	a.v.SetEnvPrefix("MNISTSQL")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()
	_ = a.v.BindEnv("config")
	_ = a.v.BindPFlag("config", pf.Lookup("config"))
	_ = a.v.BindPFlag("logging.level", pf.Lookup("log-level"))
	_ = a.v.BindPFlag("database.driver", pf.Lookup("driver"))
	_ = a.v.BindPFlag("database.dsn", pf.Lookup("dsn"))
	_ = a.v.BindPFlag("ingest.table", pf.Lookup("table"))
	for _, key := range []string{"database.password", "database.server", "database.database", "observability.metrics_addr"} {
		_ = a.v.BindEnv(key)
	}

	root.AddCommand(
		a.versionCommand(),
		a.ingestCommand(),
		a.groupCommand(),
		a.exportCommand(),
		a.countCommand(),
		a.getCommand(),
		a.initTableCommand(),
		a.downloadCommand(),
	)
	return root
}

// setup loads the configuration, applies flag and env overrides and starts
// logging, tracing and the metrics endpoint.
func (a *app) setup() error {
	cfg := config.NewDefault()
	if path := a.v.GetString("config"); path != "" {
		if err := config.Load(path, cfg); err != nil {
			return err
		}
	}
	a.applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Encoding: cfg.Logging.Format}); err != nil {
		return err
	}
	a.log = logger.Get()
	a.shutdown = append(a.shutdown, func(context.Context) error {
		_ = logger.Sync()
		return nil
	})

	tracing := observability.DefaultConfig()
	tracing.Enabled = cfg.Observability.Tracing
	tracing.ServiceName = cfg.Observability.ServiceName
	tracing.ServiceVersion = version
	tracing.Writer = os.Stderr
	shutdownTracing, err := observability.Initialize(tracing)
	if err != nil {
		return err
	}
	a.shutdown = append([]func(context.Context) error{shutdownTracing}, a.shutdown...)

	if addr := cfg.Observability.MetricsAddr; addr != "" {
		a.serveMetrics(addr)
	}
	return a.startProfiling(a.cpuProfile, a.memProfile)
}

func (a *app) applyOverrides(cfg *config.Config) {
	if s := a.v.GetString("logging.level"); s != "" {
		cfg.Logging.Level = s
	}
	if s := a.v.GetString("database.driver"); s != "" {
		cfg.Database.Driver = s
	}
	if s := a.v.GetString("database.dsn"); s != "" {
		cfg.Database.DSN = s
	}
	if s := a.v.GetString("database.server"); s != "" {
		cfg.Database.Server = s
	}
	if s := a.v.GetString("database.database"); s != "" {
		cfg.Database.Database = s
	}
	if s := a.v.GetString("database.password"); s != "" {
		cfg.Database.Password = s
	}
	if s := a.v.GetString("ingest.table"); s != "" {
		cfg.Ingest.Table = s
	}
	if s := a.v.GetString("observability.metrics_addr"); s != "" {
		cfg.Observability.MetricsAddr = s
	}
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.log.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server failed", zap.Error(err))
		}
	}()
	a.shutdown = append([]func(context.Context) error{srv.Shutdown}, a.shutdown...)
}

func (a *app) close() {
	timeout := 5 * time.Second
	if a.cfg != nil && a.cfg.Observability.ShutdownTimeout > 0 {
		timeout = a.cfg.Observability.ShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, fn := range a.shutdown {
		if err := fn(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "shutdown:", err)
		}
	}
}

func (a *app) connector() (*store.SQLConnector, error) {
	return store.NewSQLConnector(a.cfg.Database, a.log)
}

// print writes v as JSON with --json, otherwise calls text.
func (a *app) print(cmd *cobra.Command, v interface{}, text func()) error {
	if !a.jsonOut {
		text()
		return nil
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mnistsql v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
