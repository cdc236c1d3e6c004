package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tclemos/bindbench/driver"
)

// loadCmd represents the load command
var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Insert recordcount records through the configured binding",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRunner()
		if err != nil {
			return err
		}
		if _, err := r.Load(cmd.Context()); err != nil {
			return fmt.Errorf("load failed: %w", err)
		}
		log.Info().Msg("Load complete")
		return nil
	},
}

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Issue operationcount operations from the configured mix",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRunner()
		if err != nil {
			return err
		}
		if _, err := r.Run(cmd.Context()); err != nil {
			return fmt.Errorf("run failed: %w", err)
		}
		log.Info().Msg("Run complete")
		return nil
	},
}

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the configured backend honors the binding contract",
	RunE: func(cmd *cobra.Command, args []string) error {
		props, err := loadProperties()
		if err != nil {
			return err
		}
		if err := driver.Check(cmd.Context(), props); err != nil {
			log.Error().Err(err).Msg("Check failed")
			return err
		}
		log.Info().Msg("All checks passed")
		return nil
	},
}

func newRunner() (*driver.Runner, error) {
	props, err := loadProperties()
	if err != nil {
		return nil, err
	}
	return driver.NewRunner(props)
}

func init() {
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
}
