package dbmanager

import (
	"errors"
	"time"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/broker"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
)

type Config struct {
	Broker broker.Options `mapstructure:"broker"`

	// Durable queue from which worker updates are consumed.
	UpdateQueue string `mapstructure:"update_queue"`

	// Path of the SQLite database.
	Database string `mapstructure:"database"`

	// Fixed delay between attempts of a write that found the database locked.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

func (c *Config) Validate() error {
	c.Broker.SetDefaults()
	if err := c.Broker.Validate(); err != nil {
		return err
	}
	if c.UpdateQueue == "" {
		return errors.New("An update queue is required")
	}
	if c.Database == "" {
		return errors.New("A database path is required")
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 100 * time.Millisecond
	}
	return nil
}

func (c *Config) Log() {
	log.Info("Database manager configuration:")
	c.Broker.Log()
	log.Infof("  update_queue = %s", c.UpdateQueue)
	log.Infof("  database = %s", c.Database)
	log.Infof("  retry_delay = %v", c.RetryDelay)
}
