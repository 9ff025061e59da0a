package main

import (
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/broker"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/utils"
	"github.com/spf13/viper"
)

type ControlConfig struct {
	Broker      broker.Options `mapstructure:"broker"`
	TaskQueue   string         `mapstructure:"task_queue"`
	DeleteQueue string         `mapstructure:"delete_queue"`
	Database    string         `mapstructure:"database"`
}

func LoadConfig() (*ControlConfig, error) {
	config := &ControlConfig{}
	if err := utils.UnmarshalConfig(viper.GetViper(), config); err != nil {
		return nil, err
	}
	config.Broker.SetDefaults()

	return config, nil
}
