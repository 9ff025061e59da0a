package main

import (
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/runner"
	"github.com/spf13/cobra"
)

// Runs inside the child process of a job when the launcher is "auto".
var engineCmd = &cobra.Command{
	Use:    runner.EngineCommand + " -- <submission>",
	Short:  "Run one job in the analytics framework",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cores, err := cmd.Flags().GetInt("cores")
		if err != nil {
			return err
		}
		framework, err := cmd.Flags().GetString("framework")
		if err != nil {
			return err
		}
		return runner.ExecEngine(framework, cores, args[0])
	},
}

func init() {
	engineCmd.Flags().Int("cores", 1, "Cores granted to the job")
	engineCmd.Flags().String("framework", "", "Analytics framework executable")
	rootCmd.AddCommand(engineCmd)
}
