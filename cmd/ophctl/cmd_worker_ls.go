package main

import (
	"fmt"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
	"github.com/spf13/cobra"
)

var workerListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List workers",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := DefaultDeadlineContext()
		defer cancel()

		store := OpenStore()
		defer store.Close()

		workers, err := store.Workers(ctx)
		if err != nil {
			log.Fatal(err)
		}

		workerPad := fmt.Sprint(len(fmt.Sprint(len(workers))))

		for index, worker := range workers {
			fmt.Printf("%"+workerPad+"d: %s:%d %s\n",
				index+1,
				worker.Host,
				worker.Port,
				worker.Status,
			)
			fmt.Printf("  Cancel queue: %s\n", worker.DeleteQueue)
			if worker.PID > 0 {
				fmt.Printf("  Pid: %d\n", worker.PID)
				fmt.Printf("  Threads: %d\n", worker.Count)
			}
			fmt.Println()
		}
	},
}

func init() {
	workerCmd.AddCommand(workerListCmd)
}
