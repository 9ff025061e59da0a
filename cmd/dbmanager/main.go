package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/broker"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/dbmanager"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	_ "go.uber.org/automaxprocs"
)

var rootCmd = &cobra.Command{
	Use:           "oph_dbmanager",
	Short:         "Ophidia worker bookkeeping service",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		verbosity, err := cmd.Flags().GetCount("verbose")
		if err != nil {
			return err
		}
		log.SetVerbosity(verbosity)

		config := &dbmanager.Config{}
		if err := utils.ReadConfig(viper.GetViper(), "dbmanager.yaml"); err != nil {
			return err
		}
		if err := utils.LoadConfig(viper.GetViper(), config); err != nil {
			return err
		}
		config.Log()

		store, err := dbmanager.Open(config.Database)
		if err != nil {
			return err
		}
		defer store.Close()

		soft, _, stop := utils.SignalContexts(context.Background())
		defer stop()

		manager := dbmanager.NewManager(store, broker.NewDialer(&config.Broker), config)
		return manager.Run(soft)
	},
}

func main() {
	rootCmd.Flags().String("broker-host", "localhost", "Broker host")
	rootCmd.Flags().Int("broker-port", 5672, "Broker port")
	rootCmd.Flags().String("broker-user", "", "Broker user")
	rootCmd.Flags().String("broker-password", "", "Broker password")
	rootCmd.Flags().String("update-queue", "oph_updates", "Queue from which worker updates are consumed")
	rootCmd.Flags().StringP("database", "d", "/var/lib/ophidia/ophidia.db", "SQLite database")
	rootCmd.Flags().CountP("verbose", "v", "Verbosity (repeatable)")

	viper.BindPFlag("broker.host", rootCmd.Flags().Lookup("broker-host"))
	viper.BindPFlag("broker.port", rootCmd.Flags().Lookup("broker-port"))
	viper.BindPFlag("broker.user", rootCmd.Flags().Lookup("broker-user"))
	viper.BindPFlag("broker.password", rootCmd.Flags().Lookup("broker-password"))
	viper.BindPFlag("update_queue", rootCmd.Flags().Lookup("update-queue"))
	viper.BindPFlag("database", rootCmd.Flags().Lookup("database"))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		log.DebugError(err)
		if errors.Is(err, utils.ErrConfig) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}
