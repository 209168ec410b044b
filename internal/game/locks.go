package game

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type refMutex struct {
	sync.Mutex
	refs int
}

// keyedMutex serializes work per identity and lets distinct identities run
// in parallel.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[common.Address]*refMutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[common.Address]*refMutex{}}
}

// Lock blocks until key is free and returns its unlock func.
func (k *keyedMutex) Lock(key common.Address) func() {
	k.mu.Lock()
	m := k.locks[key]
	if m == nil {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
