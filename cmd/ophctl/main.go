package main

import (
	"fmt"
	"os"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "ophctl",
	Short: "Ophidia worker control command",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := utils.ReadConfig(viper.GetViper(), "ophctl.yaml"); err != nil {
			log.Fatal(err)
		}

		config, err := LoadConfig()
		if err != nil {
			log.Fatal(err)
		}
		configData = *config
	},
}

var configData = ControlConfig{}

func main() {
	log.SetLevel(log.WarningLevel)

	rootCmd.PersistentFlags().String("broker-host", "localhost", "Broker host")
	rootCmd.PersistentFlags().Int("broker-port", 5672, "Broker port")
	rootCmd.PersistentFlags().String("broker-user", "", "Broker user")
	rootCmd.PersistentFlags().String("broker-password", "", "Broker password")
	rootCmd.PersistentFlags().String("task-queue", "oph_tasks", "Queue on which tasks are submitted")
	rootCmd.PersistentFlags().String("delete-queue", "oph_delete", "Exchange on which cancellations are broadcast")
	rootCmd.PersistentFlags().StringP("database", "d", "/var/lib/ophidia/ophidia.db", "Database of the bookkeeping service")

	viper.BindPFlag("broker.host", rootCmd.PersistentFlags().Lookup("broker-host"))
	viper.BindPFlag("broker.port", rootCmd.PersistentFlags().Lookup("broker-port"))
	viper.BindPFlag("broker.user", rootCmd.PersistentFlags().Lookup("broker-user"))
	viper.BindPFlag("broker.password", rootCmd.PersistentFlags().Lookup("broker-password"))
	viper.BindPFlag("task_queue", rootCmd.PersistentFlags().Lookup("task-queue"))
	viper.BindPFlag("delete_queue", rootCmd.PersistentFlags().Lookup("delete-queue"))
	viper.BindPFlag("database", rootCmd.PersistentFlags().Lookup("database"))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
