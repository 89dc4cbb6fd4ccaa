package trader

import "sync"

// accountLocks hands out one mutex per account so that read-validate-write
// cycles on the same account never interleave.
type accountLocks struct {
	mu    sync.Mutex
	locks map[uint]*accountLock
}

type accountLock struct {
	sync.Mutex
	refs int
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[uint]*accountLock)}
}

// lock blocks until owner's lock is held and returns the release function.
func (a *accountLocks) lock(owner uint) func() {
	a.mu.Lock()
	l, ok := a.locks[owner]
	if !ok {
		l = &accountLock{}
		a.locks[owner] = l
	}
	l.refs++
	a.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		a.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(a.locks, owner)
		}
		a.mu.Unlock()
	}
}
