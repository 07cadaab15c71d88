package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/railnet"
	"nyiyui.ca/hato/railnet/config"
	"nyiyui.ca/hato/railnet/grid"
	"nyiyui.ca/hato/railnet/store"
	"nyiyui.ca/hato/railnet/tal"
)

var testbenches = map[string]func() *grid.World{
	"1": grid.InitTestbench1,
	"2": grid.InitTestbench2,
	"3": grid.InitTestbench3,
	"4": grid.InitTestbench4,
	"5": grid.InitTestbench5,
}

var rootCmd = &cobra.Command{
	Use:   "railnet",
	Short: "Signalling and routing for a block-world rail network",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.Load()
		if err != nil {
			return err
		}
		return setupLogger(s.LogLevel)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "set log level")
	rootCmd.PersistentFlags().String("world", "", "JSON layout file")
	rootCmd.PersistentFlags().String("testbench", "", "use a preset world instead ("+strings.Join(testbenchNames(), ", ")+")")
	rootCmd.PersistentFlags().String("db", ":memory:", "buntdb file the world is stored in")
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("world", rootCmd.PersistentFlags().Lookup("world"))
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))

	rootCmd.AddCommand(serveCmd, routeCmd, importCmd)
}

func testbenchNames() []string {
	names := maps.Keys(testbenches)
	slices.Sort(names)
	return names
}

func setupLogger(level string) error {
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(l)
	dev, err := cfg.Build()
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(dev)
	return nil
}

// loadWorld builds the world from a testbench, the layout file, or the store, in that order of preference.
// Trains only come from a layout file.
func loadWorld(cmd *cobra.Command, s config.Settings, st *store.Store) (*grid.World, []grid.Observation, error) {
	if name, _ := cmd.Flags().GetString("testbench"); name != "" {
		mk, ok := testbenches[name]
		if !ok {
			return nil, nil, fmt.Errorf("unknown testbench %q", name)
		}
		return mk(), nil, nil
	}
	w := grid.NewWorld()
	if s.World != "" {
		l, err := config.ReadLayout(s.World)
		if err != nil {
			return nil, nil, err
		}
		cells, err := l.Descriptors()
		if err != nil {
			return nil, nil, err
		}
		w.Replace(cells)
		return w, l.Observations(), nil
	}
	if st == nil {
		return nil, nil, fmt.Errorf("no world: pass --world, --testbench, or --db")
	}
	cells, err := st.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load store: %w", err)
	}
	w.Replace(cells)
	return w, nil, nil
}

var routeCmd = &cobra.Command{
	Use:   "route <from> <heading> <pattern>",
	Short: "Find a route from a rail to a station and print it as JSON",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.Load()
		if err != nil {
			return err
		}
		from, err := grid.ParsePos(args[0])
		if err != nil {
			return err
		}
		var heading railnet.Heading
		if err := heading.UnmarshalText([]byte(args[1])); err != nil {
			return err
		}
		var st *store.Store
		if s.World == "" {
			st, err = store.Open(s.DB)
			if err != nil {
				return err
			}
			defer st.Close()
		}
		w, _, err := loadWorld(cmd, s, st)
		if err != nil {
			return err
		}
		g := tal.NewGuide(tal.GuideConf[grid.Pos]{Comment: "route", Oracle: w, Starts: w.Anchors()})
		defer g.Close()
		route, err := g.Pathfind(from, heading, args[2])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(route)
	},
}

var importCmd = &cobra.Command{
	Use:   "import <layout.json>",
	Short: "Replace the stored world with a JSON layout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.Load()
		if err != nil {
			return err
		}
		l, err := config.ReadLayout(args[0])
		if err != nil {
			return err
		}
		cells, err := l.Descriptors()
		if err != nil {
			return err
		}
		st, err := store.Open(s.DB)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.ReplaceAll(cells); err != nil {
			return err
		}
		zap.S().Infow("imported layout", "path", args[0], "db", s.DB, "blocks", len(cells))
		return nil
	},
}

func main() {
	defer zap.S().Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
