// Command simulation moves targets among simulated radio beacons and locates
// them with the robust sequential ranging and RSSI estimator.
package main

import (
	"fmt"
	"math/rand/v2"
	"os"

	"indoor-positioning/internal/config"
	"indoor-positioning/internal/logging"
	"indoor-positioning/internal/simulation"

	"github.com/spf13/cobra"
)

var (
	configPath string
	steps      int
	seed       uint64
	outliers   float64
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "simulation",
	Short: "Simulate robust indoor positioning from ranging and RSSI readings",
	Long: `simulation places radio beacons and moving targets in an n-dimensional
room. At every step each target collects ranging and RSSI readings, some of
them corrupted by multipath, and is located by a robust ranging pass that
seeds a robust RSSI pass.

Examples:
  simulation
  simulation --config configs/simulation.yaml --steps 200
  simulation --outliers 0.4 --seed 7 --verbose`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML configuration file (default: built-in settings)")
	rootCmd.Flags().IntVarP(&steps, "steps", "n", 0, "number of simulation steps (overrides the configuration)")
	rootCmd.Flags().Uint64Var(&seed, "seed", 0, "random seed (overrides the configuration, 0 picks one)")
	rootCmd.Flags().Float64Var(&outliers, "outliers", -1, "fraction of corrupted beacons per observation (overrides the configuration)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every estimate")
}

func run(cmd *cobra.Command) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("steps") {
		cfg.Steps = steps
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = seed
	}
	if cmd.Flags().Changed("outliers") {
		cfg.Simulation.OutlierFraction = outliers
	}
	if verbose {
		cfg.LogLevel = logging.DEBUG.String()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger := logging.New(cmd.OutOrStdout(), level)

	if cfg.Seed == 0 {
		cfg.Seed = rand.Uint64()
	}
	logger.Info("seed %d", cfg.Seed)

	sim, err := simulation.NewSimulation(cfg.Simulation, cfg.Estimator, rand.New(rand.NewPCG(cfg.Seed, cfg.Seed)), logger)
	if err != nil {
		return fmt.Errorf("create simulation: %w", err)
	}
	if err := sim.Populate(); err != nil {
		return fmt.Errorf("populate simulation: %w", err)
	}

	summary := sim.Run(cfg.Steps)
	fmt.Fprintln(cmd.OutOrStdout(), summary)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
