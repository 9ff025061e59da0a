package utils

import "sync"

type RWMutex interface {
	// Lock locks the mutex.
	Lock()

	// Unlock unlocks the mutex.
	Unlock()

	// RLock locks the mutex for reading.
	RLock()

	// RUnlock unlocks the mutex.
	RUnlock()
}

type plainMutex struct {
	sync.RWMutex
}

// NewRWMutex returns the RWMutex implementation used for shared worker tables.
func NewRWMutex() RWMutex {
	return &plainMutex{}
}
