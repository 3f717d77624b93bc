package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nedscode/dbrouted/pkg/admin"
	"github.com/nedscode/dbrouted/pkg/config"
	"github.com/nedscode/dbrouted/pkg/hook"
	"github.com/nedscode/dbrouted/pkg/journal"
	"github.com/nedscode/dbrouted/pkg/monitor"
	"github.com/nedscode/dbrouted/pkg/registry"
	"github.com/nedscode/dbrouted/pkg/router"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dbrouted",
	Short: "dbrouted - a replicating-backend database proxy core",
	Long: `dbrouted monitors a set of database backends, tracks their
replication role, routes new connections to the best candidate, and
forwards committed replication events downstream.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"dbrouted version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a monitor pool and router for a set of backends",
	RunE:  runMonitorPool,
}

func init() {
	runCmd.Flags().String("name", "pool1", "monitor pool name")
	runCmd.Flags().StringSlice("backend", nil, "backend as name=host:port:weight (repeatable)")
	runCmd.Flags().Duration("interval", 2*time.Second, "monitor tick interval")
	runCmd.Flags().Duration("connect-timeout", 3*time.Second, "backend connect timeout")
	runCmd.Flags().String("data-dir", "./dbrouted-data", "journal data directory")
	runCmd.Flags().String("script", "", "event hook script template, e.g. /etc/dbrouted/notify.sh $EVENT $INITIATOR")
	runCmd.Flags().String("router-options", "", "router_options filter, e.g. \"slave,running\" (default: running)")
}

type backendSpec struct {
	name   string
	addr   string
	port   int
	weight int
}

func parseBackendSpec(s string) (backendSpec, error) {
	nameRest := strings.SplitN(s, "=", 2)
	if len(nameRest) != 2 {
		return backendSpec{}, fmt.Errorf("backend %q: expected name=host:port:weight", s)
	}
	parts := strings.Split(nameRest[1], ":")
	if len(parts) != 3 {
		return backendSpec{}, fmt.Errorf("backend %q: expected host:port:weight", s)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return backendSpec{}, fmt.Errorf("backend %q: bad port: %w", s, err)
	}
	weight, err := strconv.Atoi(parts[2])
	if err != nil {
		return backendSpec{}, fmt.Errorf("backend %q: bad weight: %w", s, err)
	}
	return backendSpec{name: nameRest[0], addr: parts[0], port: port, weight: weight}, nil
}

func runMonitorPool(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	rawBackends, _ := cmd.Flags().GetStringSlice("backend")
	interval, _ := cmd.Flags().GetDuration("interval")
	connectTimeout, _ := cmd.Flags().GetDuration("connect-timeout")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	script, _ := cmd.Flags().GetString("script")
	routerOptions, _ := cmd.Flags().GetString("router-options")

	if len(rawBackends) == 0 {
		return fmt.Errorf("at least one --backend is required")
	}

	settings := monitor.DefaultSettings()
	settings.Interval = interval
	settings.ConnectTimeout = connectTimeout
	settings.Script = script
	if err := config.Validate(settings); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	reg := registry.New()
	for _, raw := range rawBackends {
		spec, err := parseBackendSpec(raw)
		if err != nil {
			return err
		}
		b := registry.NewBackend(spec.name, spec.addr, spec.port, spec.weight)
		if err := reg.Register(b); err != nil {
			return fmt.Errorf("register backend %s: %w", spec.name, err)
		}
	}

	journalStore, err := journal.New(dataDir, name)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	mask, value, err := router.ParseRouterOptions(routerOptions)
	if err != nil {
		return err
	}
	sessions := router.NewSessionRegistry()
	rt := router.NewRouter(reg, sessions)
	rt.RequireMask, rt.RequireValue = mask, value

	hooks := hook.NewRunner(64)
	defer hooks.Stop()

	m := monitor.New(name, settings, reg)
	m.Discovery = monitor.NewSimpleDiscovery(&tcpDriver{dialTimeout: connectTimeout}, reachabilityRoleQuery)
	m.Journal = journalStore
	m.Hooks = hooks
	m.OnDisconnect = func(backendName string) { sessions.DisconnectBackend(backendName) }

	for _, b := range reg.All() {
		m.AddBackend(&monitor.MonitoredBackend{
			Backend: b,
			DSN:     b.Addr(),
		})
	}

	ctrl := admin.New()
	if err := ctrl.RegisterMonitor(name, m); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := signalContext(sigCh)
	defer cancel()

	if err := m.Start(ctx); err != nil {
		return fmt.Errorf("start monitor %s: %w", name, err)
	}

	fmt.Printf("dbrouted monitor %q running with %d backend(s); press Ctrl+C to stop.\n", name, reg.Len())

	<-ctx.Done()
	fmt.Println("shutting down...")

	if err := m.Stop(); err != nil {
		return fmt.Errorf("stop monitor %s: %w", name, err)
	}

	if master, err := rt.Select(ctx); err == nil {
		fmt.Printf("backend the router would select at shutdown: %s\n", master.Name)
	}

	fmt.Println("shutdown complete")
	return nil
}
