package main

import (
	"fmt"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
	"github.com/spf13/cobra"
)

var jobListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List running jobs",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := DefaultDeadlineContext()
		defer cancel()

		store := OpenStore()
		defer store.Close()

		jobs, err := store.Jobs(ctx)
		if err != nil {
			log.Fatal(err)
		}

		for _, job := range jobs {
			fmt.Printf("workflow %d job %d on %s:%d\n", job.WorkflowID, job.JobID, job.Host, job.Port)
		}
	},
}

func init() {
	jobCmd.AddCommand(jobListCmd)
}
