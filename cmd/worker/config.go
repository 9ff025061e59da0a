package main

import (
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/utils"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/worker"
	"github.com/spf13/viper"
)

func LoadConfig() (*worker.WorkerConfig, error) {
	config := &worker.WorkerConfig{}

	if err := utils.ReadConfig(viper.GetViper(), "worker.yaml"); err != nil {
		return nil, err
	}
	if err := utils.LoadConfig(viper.GetViper(), config); err != nil {
		return nil, err
	}

	return config, nil
}
