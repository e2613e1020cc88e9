package usecase

import (
	"github.com/google/uuid"
	"github.com/moby/locker"
)

// keyedMutex serialises work per booking or claim within one process.
type keyedMutex struct {
	locks *locker.Locker
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: locker.New()}
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *keyedMutex) Lock(key uuid.UUID) func() {
	name := key.String()
	k.locks.Lock(name)
	return func() {
		// Only fails for a name that is not locked, which the returned
		// func never does.
		_ = k.locks.Unlock(name)
	}
}
