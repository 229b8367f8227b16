/**
 * @description
 * Per-key mutual exclusion for the transaction engine. Transfers from the
 * same sender must serialize so two in-flight requests cannot both pass the
 * balance check against a stale read, but unrelated senders' transfers must
 * proceed in parallel, so one global lock is not acceptable.
 *
 * Entries are reference-counted and removed when the last holder releases,
 * so the map does not grow with the user population.
 */

package app

import "sync"

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*lockEntry)}
}

// Lock blocks until the key's mutex is held and returns the matching unlock.
func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
