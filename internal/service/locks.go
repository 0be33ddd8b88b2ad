package service

import "sync"

// keyedMutex hands out one mutex per string key. Keys are never
// reclaimed; the key space here (rooms, user:asset pairs) is small.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// Lock acquires the mutex for key.
func (k *keyedMutex) Lock(key string) {
	k.get(key).Lock()
}

// Unlock releases the mutex for key.
func (k *keyedMutex) Unlock(key string) {
	k.get(key).Unlock()
}

// LockPair acquires both keys' mutexes in lexicographic order, so two
// transfers touching the same wallets in opposite directions cannot
// deadlock. Equal keys are locked once.
func (k *keyedMutex) LockPair(a, b string) {
	if a == b {
		k.Lock(a)
		return
	}
	if a > b {
		a, b = b, a
	}
	k.Lock(a)
	k.Lock(b)
}

// UnlockPair releases both keys' mutexes.
func (k *keyedMutex) UnlockPair(a, b string) {
	if a == b {
		k.Unlock(a)
		return
	}
	if a > b {
		a, b = b, a
	}
	k.Unlock(b)
	k.Unlock(a)
}
