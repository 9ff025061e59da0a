package main

import (
	"context"
	"time"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/broker"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/dbmanager"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
)

// NewBrokerSession connects to the broker, failing immediately if it is
// unreachable.
func NewBrokerSession() broker.Session {
	if err := configData.Broker.Validate(); err != nil {
		log.Fatal(err)
	}

	session, err := broker.Dial(&configData.Broker)
	if err != nil {
		log.Fatal(err)
	}
	return session
}

// OpenStore opens the database manager's store for reading.
func OpenStore() *dbmanager.Store {
	store, err := dbmanager.OpenReadOnly(configData.Database)
	if err != nil {
		log.Fatal(err)
	}
	return store
}

func DefaultDeadlineContext() (context.Context, func()) {
	return context.WithDeadline(context.Background(), time.Now().Add(time.Second*30))
}
