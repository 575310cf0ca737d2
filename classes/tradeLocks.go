package cls

// serialises operations on a single trade within this process. Two
// commands for the same trade can otherwise both read the same history
// and race to append to it.

import "sync"

type TradeLocks struct {
	locks   map[string]*tradeLock
	uidsMtx sync.Mutex
}

type tradeLock struct {
	mtx     sync.Mutex
	holders int // goroutines holding or waiting on mtx
}

func NewTradeLocks() *TradeLocks {
	return &TradeLocks{
		locks: map[string]*tradeLock{},
	}
}

// block until the caller holds the lock for tradeID
func (tl *TradeLocks) Lock(tradeID string) {
	tl.uidsMtx.Lock()
	lk, exists := tl.locks[tradeID]
	if !exists {
		lk = &tradeLock{}
		tl.locks[tradeID] = lk
	}
	lk.holders++
	tl.uidsMtx.Unlock()

	lk.mtx.Lock()
}

// release the lock for tradeID. the entry is dropped once nobody is waiting on it
func (tl *TradeLocks) Unlock(tradeID string) {
	tl.uidsMtx.Lock()
	defer tl.uidsMtx.Unlock()

	lk, exists := tl.locks[tradeID]
	if !exists {
		return
	}

	lk.holders--
	if lk.holders == 0 {
		delete(tl.locks, tradeID)
	}
	lk.mtx.Unlock()
}

// number of trades currently locked or waited on
func (tl *TradeLocks) Len() int {
	tl.uidsMtx.Lock()
	defer tl.uidsMtx.Unlock()
	return len(tl.locks)
}
