package main

import (
	"fmt"
	"strconv"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/protocol"
	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [workflow]...",
	Short: "Cancel workflows on every worker",
	Long: `Cancel workflows on every worker.

Running jobs of the workflows are killed and queued jobs are discarded
until each worker has handled checks times the configured factor other
messages. With zero checks the factor alone is used.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := DefaultDeadlineContext()
		defer cancel()

		checks, _ := cmd.Flags().GetInt("checks")

		session := NewBrokerSession()
		defer session.Close()

		if err := session.DeclareFanout(configData.DeleteQueue); err != nil {
			log.Fatal(err)
		}

		for _, arg := range args {
			workflow, err := strconv.Atoi(arg)
			if err != nil || workflow <= 0 {
				log.Fatalf("Invalid workflow id: %s", arg)
			}

			request := protocol.Cancel{WorkflowID: workflow, Checks: checks}
			if err := session.Publish(ctx, configData.DeleteQueue, "", request.Encode()); err != nil {
				log.Fatal(err)
			}

			fmt.Printf("Cancelled workflow %d\n", workflow)
		}
	},
}

func init() {
	cancelCmd.Flags().IntP("checks", "c", 0, "Messages to check before the cancellation expires")
	rootCmd.AddCommand(cancelCmd)
}
