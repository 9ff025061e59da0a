package main

import "github.com/spf13/cobra"

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Commands to inspect running jobs",
}

func init() {
	rootCmd.AddCommand(jobCmd)
}
