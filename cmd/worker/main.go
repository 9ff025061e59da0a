package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/utils"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	_ "go.uber.org/automaxprocs"
)

var rootCmd = &cobra.Command{
	Use:           "oph_worker",
	Short:         "Ophidia analytics job worker",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		verbosity, err := cmd.Flags().GetCount("verbose")
		if err != nil {
			return err
		}
		log.SetVerbosity(verbosity)

		// Load worker configuration from file or environment.
		config, err := LoadConfig()
		if err != nil {
			return err
		}
		config.Log()

		w, err := worker.NewWorker(config, worker.Options{})
		if err != nil {
			return fmt.Errorf("%w: %v", utils.ErrConfig, err)
		}

		soft, hard, stop := utils.SignalContexts(context.Background())
		defer stop()

		return w.Run(soft, hard)
	},
}

func main() {
	rootCmd.Flags().String("broker-host", "localhost", "Broker host")
	rootCmd.Flags().Int("broker-port", 5672, "Broker port")
	rootCmd.Flags().String("broker-user", "", "Broker user")
	rootCmd.Flags().String("broker-password", "", "Broker password")
	rootCmd.Flags().String("task-queue", "oph_tasks", "Queue from which tasks are consumed")
	rootCmd.Flags().String("update-queue", "oph_updates", "Queue to which bookkeeping updates are published")
	rootCmd.Flags().String("delete-queue", "oph_delete", "Exchange on which cancellations are broadcast")
	rootCmd.Flags().String("listen-host", "127.0.0.1", "Worker address")
	rootCmd.Flags().Int("listen-port", 11732, "Status server port")
	rootCmd.Flags().IntP("max-cores", "c", runtime.NumCPU(), "Cores shared by running jobs")
	rootCmd.Flags().IntP("threads", "j", 1, "Concurrent dispatchers")
	rootCmd.Flags().StringP("launcher", "l", "auto", "Launcher command prefix, or auto")
	rootCmd.Flags().String("framework-path", "/usr/local/ophidia/oph-cluster/oph-analytics-framework/bin/oph_analytics_framework", "Analytics framework executable")
	rootCmd.Flags().String("log-dir", "", "Directory for per-job output")
	rootCmd.Flags().Bool("cancellation", false, "Enable workflow cancellation and bookkeeping")
	rootCmd.Flags().Int("cancellation-factor", 2, "Multiplication factor of cancellation check counts")
	rootCmd.Flags().Int("cancellation-entries", 64, "Workflows that can be cancelled at once")
	rootCmd.Flags().CountP("verbose", "v", "Verbosity (repeatable)")

	viper.BindPFlag("broker.host", rootCmd.Flags().Lookup("broker-host"))
	viper.BindPFlag("broker.port", rootCmd.Flags().Lookup("broker-port"))
	viper.BindPFlag("broker.user", rootCmd.Flags().Lookup("broker-user"))
	viper.BindPFlag("broker.password", rootCmd.Flags().Lookup("broker-password"))
	viper.BindPFlag("task_queue", rootCmd.Flags().Lookup("task-queue"))
	viper.BindPFlag("update_queue", rootCmd.Flags().Lookup("update-queue"))
	viper.BindPFlag("delete_queue", rootCmd.Flags().Lookup("delete-queue"))
	viper.BindPFlag("listen_host", rootCmd.Flags().Lookup("listen-host"))
	viper.BindPFlag("listen_port", rootCmd.Flags().Lookup("listen-port"))
	viper.BindPFlag("max_cores", rootCmd.Flags().Lookup("max-cores"))
	viper.BindPFlag("threads", rootCmd.Flags().Lookup("threads"))
	viper.BindPFlag("launcher", rootCmd.Flags().Lookup("launcher"))
	viper.BindPFlag("framework_path", rootCmd.Flags().Lookup("framework-path"))
	viper.BindPFlag("log_dir", rootCmd.Flags().Lookup("log-dir"))
	viper.BindPFlag("cancellation.enabled", rootCmd.Flags().Lookup("cancellation"))
	viper.BindPFlag("cancellation.factor", rootCmd.Flags().Lookup("cancellation-factor"))
	viper.BindPFlag("cancellation.max_entries", rootCmd.Flags().Lookup("cancellation-entries"))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		log.DebugError(err)
		os.Exit(exitCode(err))
	}
}

// Configuration errors exit with 1, anything else with 2.
func exitCode(err error) int {
	if errors.Is(err, utils.ErrConfig) {
		return 1
	}
	return 2
}
