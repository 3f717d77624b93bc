// Command dbroutectl is a thin demonstration CLI for the Admin Control
// Plane (spec §4.G, §6). It builds its own in-process registry and
// monitor rather than attaching to a separately running dbrouted — the
// admin surface is explicitly a library, not a network service (spec §1
// excludes an admin HTTP surface) — so this talks to pkg/admin directly
// and reports the result of each MAINT/DRAIN operation.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nedscode/dbrouted/pkg/admin"
	"github.com/nedscode/dbrouted/pkg/monitor"
	"github.com/nedscode/dbrouted/pkg/registry"
)

var (
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
	Use:   "dbroutectl",
	Short: "dbroutectl - demonstrate the dbrouted admin control plane",
	Long: `dbroutectl builds an in-process registry of backends and issues
MAINT/DRAIN admin operations against it through pkg/admin, the same
control plane a dbrouted process embeds. It has no network surface: this
is a library-wiring demonstration, not a remote admin client.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"dbroutectl version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.PersistentFlags().StringSlice("backend", nil, "backend as name=host:port:weight (repeatable)")
	rootCmd.AddCommand(maintCmd)
	rootCmd.AddCommand(drainCmd)
	rootCmd.AddCommand(statusCmd)
}

func buildControlPlane(cmd *cobra.Command) (*admin.Admin, error) {
	raw, _ := cmd.Flags().GetStringSlice("backend")
	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one --backend is required")
	}

	reg := registry.New()
	for _, spec := range raw {
		nameRest := strings.SplitN(spec, "=", 2)
		if len(nameRest) != 2 {
			return nil, fmt.Errorf("backend %q: expected name=host:port:weight", spec)
		}
		parts := strings.Split(nameRest[1], ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("backend %q: expected host:port:weight", spec)
		}
		port, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("backend %q: bad port: %w", spec, err)
		}
		weight, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("backend %q: bad weight: %w", spec, err)
		}
		b := registry.NewBackend(nameRest[0], parts[0], port, weight)
		if err := reg.Register(b); err != nil {
			return nil, err
		}
	}

	ctrl := admin.New()
	m := monitor.New("ctl", monitor.DefaultSettings(), reg)
	if err := ctrl.RegisterMonitor("ctl", m); err != nil {
		return nil, err
	}
	return ctrl, nil
}

var maintCmd = &cobra.Command{
	Use:   "maint <on|off> <backend>",
	Short: "Set or clear the MAINT flag on a backend",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		ctrl, err := buildControlPlane(cmd)
		if err != nil {
			return err
		}
		if err := ctrl.SetMaintenance(args[1], on); err != nil {
			return err
		}
		fmt.Printf("queued MAINT=%v for %s\n", on, args[1])
		return nil
	},
}

var drainCmd = &cobra.Command{
	Use:   "drain <on|off> <backend>",
	Short: "Set or clear the DRAINING flag on a backend",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		ctrl, err := buildControlPlane(cmd)
		if err != nil {
			return err
		}
		if err := ctrl.SetDraining(args[1], on); err != nil {
			return err
		}
		fmt.Printf("queued DRAINING=%v for %s\n", on, args[1])
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a snapshot of every registered backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := buildControlPlane(cmd)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tADDRESS\tFLAGS\tCONNECTIONS")
		for _, s := range ctrl.Status() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", s.Name, s.Address, s.Flags, s.Connections)
		}
		return w.Flush()
	},
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, fmt.Errorf("expected 'on' or 'off', got %q", s)
	}
}
