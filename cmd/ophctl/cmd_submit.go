package main

import (
	"fmt"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/protocol"
	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit [submission]",
	Short: "Submit a job to the workers",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := DefaultDeadlineContext()
		defer cancel()

		workflow, _ := cmd.Flags().GetInt("workflow")
		job, _ := cmd.Flags().GetInt("job")
		cores, _ := cmd.Flags().GetInt("cores")

		task := protocol.Task{
			Submission: args[0],
			WorkflowID: workflow,
			JobID:      job,
			Cores:      cores,
		}

		// Reject what a worker could not parse back.
		body := task.Encode()
		if _, err := protocol.ParseTask(body); err != nil {
			log.Fatal(err)
		}

		session := NewBrokerSession()
		defer session.Close()

		if err := session.DeclareQueue(configData.TaskQueue, true); err != nil {
			log.Fatal(err)
		}
		if err := session.Publish(ctx, "", configData.TaskQueue, body); err != nil {
			log.Fatal(err)
		}

		fmt.Printf("Submitted %s\n", task)
	},
}

func init() {
	submitCmd.Flags().IntP("workflow", "w", 0, "Workflow id")
	submitCmd.Flags().IntP("job", "J", 0, "Job id")
	submitCmd.Flags().IntP("cores", "n", 1, "Cores needed by the job")
	submitCmd.MarkFlagRequired("workflow")
	rootCmd.AddCommand(submitCmd)
}
