package ledger

import "sync"

// userLocks hands out one mutex per user id so same-user operations
// serialize in-process while different users never contend.
type userLocks struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[uint]*sync.Mutex)}
}

func (ul *userLocks) get(userID uint) *sync.Mutex {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	l, ok := ul.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		ul.locks[userID] = l
	}
	return l
}
