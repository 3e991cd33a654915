package vm

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// shellPool is the interpreter-shell pool spec §4.1 describes: a
// bounded set of reusable interpreter states, handed to whichever
// worker calls get and returned by release. Recently-used shells are
// kept warm (their loaded-contract cache stays hot) via an LRU of
// idle shells; a full pool falls back to allocating a fresh shell
// rather than blocking a worker.
type shellPool struct {
	newRuntime func() ContractRuntime

	mu   sync.Mutex
	idle *lru.Cache // key: slot index (int), value: ContractRuntime
	next int
}

// newShellPool builds a pool of at most size idle shells, constructed
// lazily via newRuntime.
func newShellPool(size int, newRuntime func() ContractRuntime) *shellPool {
	idle, err := lru.New(size)
	if err != nil {
		// size <= 0; a pool that never keeps anything idle still works,
		// every get() falls through to newRuntime.
		idle, _ = lru.New(1)
	}
	return &shellPool{newRuntime: newRuntime, idle: idle}
}

// get pops a warm shell if one is idle, otherwise allocates a new one.
func (p *shellPool) get() ContractRuntime {
	p.mu.Lock()
	defer p.mu.Unlock()
	if keys := p.idle.Keys(); len(keys) > 0 {
		key := keys[0]
		v, ok := p.idle.Get(key)
		p.idle.Remove(key)
		if ok {
			return v.(ContractRuntime)
		}
	}
	return p.newRuntime()
}

// release returns a shell to the idle set, keyed by an internal
// counter so the LRU evicts oldest-idle first once the pool is full.
func (p *shellPool) release(rt ContractRuntime) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	p.idle.Add(p.next, rt)
}
