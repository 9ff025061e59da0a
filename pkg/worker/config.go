package worker

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/broker"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/runner"
)

type CancellationConfig struct {
	// Whether the worker consumes cancellations and reports bookkeeping
	// updates to the database manager.
	Enabled bool `mapstructure:"enabled"`

	// Multiplication factor applied to the check count of a cancellation.
	Factor int `mapstructure:"factor"`

	// Number of workflows that can be cancelled at the same time.
	MaxEntries int `mapstructure:"max_entries"`
}

type WorkerConfig struct {
	Broker broker.Options `mapstructure:"broker"`

	// Durable queue from which tasks are consumed.
	TaskQueue string `mapstructure:"task_queue"`

	// Durable queue to which bookkeeping updates are published.
	UpdateQueue string `mapstructure:"update_queue"`

	// Fanout exchange on which cancellations are broadcast.
	DeleteQueue string `mapstructure:"delete_queue"`

	// Address reported as the worker identity and used by the status server.
	ListenHost string `mapstructure:"listen_host"`
	ListenPort int    `mapstructure:"listen_port"`

	// Number of cores shared by all running jobs.
	MaxCores int `mapstructure:"max_cores"`

	// Number of concurrent dispatchers.
	ThreadCount int `mapstructure:"threads"`

	// Launcher command prefix, or "auto" to run the framework directly.
	Launcher string `mapstructure:"launcher"`

	// Path of the analytics framework executable.
	FrameworkPath string `mapstructure:"framework_path"`

	// Directory for per-job output files.
	LogDir string `mapstructure:"log_dir"`

	Cancellation CancellationConfig `mapstructure:"cancellation"`
}

// Checks if the worker configuration is valid.
func (c *WorkerConfig) Validate() error {
	c.Broker.SetDefaults()
	if err := c.Broker.Validate(); err != nil {
		return err
	}

	if c.TaskQueue == "" {
		return errors.New("A task queue is required")
	}

	if c.ListenHost == "" {
		return errors.New("A listen host is required")
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return errors.New("The listen port is not valid")
	}

	if c.MaxCores <= 0 {
		return errors.New("The maximum core count must be greater than zero")
	}

	// Validate the thread count.
	if c.ThreadCount <= 0 {
		return errors.New("The thread count must be greater than zero")
	}

	if c.Launcher == "" {
		return errors.New("A launcher is required")
	}
	if c.FrameworkPath == "" {
		return errors.New("A framework path is required")
	}

	if c.Cancellation.Enabled {
		if c.UpdateQueue == "" {
			return errors.New("An update queue is required when cancellation is enabled")
		}
		if c.DeleteQueue == "" {
			return errors.New("A delete queue is required when cancellation is enabled")
		}
		if c.Cancellation.Factor <= 0 {
			return errors.New("The cancellation factor must be greater than zero")
		}
		if c.Cancellation.MaxEntries <= 0 {
			return errors.New("The cancellation registry size must be greater than zero")
		}
	}

	return nil
}

// Address of the status server.
func (c *WorkerConfig) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.ListenHost, c.ListenPort)
}

func (c *WorkerConfig) RunnerConfig() runner.Config {
	return runner.Config{
		Launcher:      c.Launcher,
		FrameworkPath: c.FrameworkPath,
		LogDir:        c.LogDir,
	}
}

func (c *WorkerConfig) Log() {
	log.Info("Worker configuration:")
	c.Broker.Log()
	log.Infof("  task_queue = %s", c.TaskQueue)
	log.Infof("  update_queue = %s", c.UpdateQueue)
	log.Infof("  delete_queue = %s", c.DeleteQueue)
	log.Infof("  listen = %s", c.ListenAddress())
	log.Infof("  max_cores = %d", c.MaxCores)
	log.Infof("  threads = %d", c.ThreadCount)
	log.Infof("  launcher = %s", c.Launcher)
	log.Infof("  framework_path = %s", c.FrameworkPath)
	log.Infof("  log_dir = %s", c.LogDir)
	log.Infof("  cancellation.enabled = %v", c.Cancellation.Enabled)
	if c.Cancellation.Enabled {
		log.Infof("  cancellation.factor = %d", c.Cancellation.Factor)
		log.Infof("  cancellation.max_entries = %d", c.Cancellation.MaxEntries)
	}
	if c.ThreadCount > runtime.NumCPU() {
		log.Warnf("Thread count %d exceeds the %d available CPUs", c.ThreadCount, runtime.NumCPU())
	}
}
