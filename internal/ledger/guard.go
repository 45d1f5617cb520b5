package ledger

import (
	"fmt"
	"strings"
	"sync"
)

// GuardMode selects how a payment's read-modify-write is serialized.
type GuardMode string

const (
	// GuardNone reads, appends the event and writes the summary with no transaction.
	// Concurrent payments on one record can lose updates.
	GuardNone GuardMode = "none"
	// GuardCAS runs in a db transaction and only writes the summary if the prior
	// running total is unchanged; otherwise the payment fails with a conflict.
	GuardCAS GuardMode = "cas"
	// GuardLock runs in a db transaction holding SELECT ... FOR UPDATE on the row.
	GuardLock GuardMode = "lock"
	// GuardMutex serializes per record id inside this process.
	GuardMutex GuardMode = "mutex"
)

func ParseGuardMode(s string) (GuardMode, error) {
	switch m := GuardMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return GuardNone, nil
	case GuardNone, GuardCAS, GuardLock, GuardMutex:
		return m, nil
	default:
		return "", fmt.Errorf("unknown payment guard %q (want none, cas, lock or mutex)", s)
	}
}

// Transactional reports whether the mode wraps the payment in a db transaction.
func (m GuardMode) Transactional() bool {
	return m == GuardCAS || m == GuardLock || m == GuardMutex
}

// KeyedMutex hands out one mutex per key. Entries are dropped once no caller holds or waits on them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[uint]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[uint]*keyedEntry)}
}

// Lock blocks until key is free and returns its unlock func.
func (k *KeyedMutex) Lock(key uint) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Len is the number of keys currently held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
