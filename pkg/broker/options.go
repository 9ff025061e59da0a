package broker

import (
	"errors"
	"net/url"
	"time"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Options struct {
	// Broker host name or address.
	Host string `mapstructure:"host"`

	// Broker port.
	Port int `mapstructure:"port"`

	// Credentials.
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`

	// Virtual host, defaults to "/".
	Vhost string `mapstructure:"vhost"`

	// Fixed delay between connection attempts.
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`

	// Heartbeat interval negotiated with the broker.
	Heartbeat time.Duration `mapstructure:"heartbeat"`
}

func (o *Options) SetDefaults() {
	if o.Port == 0 {
		o.Port = 5672
	}
	if o.Vhost == "" {
		o.Vhost = "/"
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 5 * time.Second
	}
	if o.Heartbeat <= 0 {
		o.Heartbeat = 10 * time.Second
	}
}

func (o *Options) Validate() error {
	if o.Host == "" {
		return errors.New("A broker host is required")
	}
	if o.Port <= 0 || o.Port > 65535 {
		return errors.New("The broker port is not valid")
	}
	if o.User == "" {
		return errors.New("A broker user is required")
	}
	if o.Password == "" {
		return errors.New("A broker password is required")
	}
	return nil
}

func (o *Options) URI() string {
	uri := amqp.URI{
		Scheme:   "amqp",
		Host:     o.Host,
		Port:     o.Port,
		Username: o.User,
		Password: o.Password,
		Vhost:    o.Vhost,
	}
	return uri.String()
}

// Redacted returns the broker URI without the password, for logging.
func (o *Options) Redacted() string {
	u, err := url.Parse(o.URI())
	if err != nil {
		return o.Host
	}
	return u.Redacted()
}

func (o *Options) Log() {
	log.Infof("  broker = %s", o.Redacted())
	log.Infof("  broker.reconnect_delay = %v", o.ReconnectDelay)
	log.Infof("  broker.heartbeat = %v", o.Heartbeat)
}
