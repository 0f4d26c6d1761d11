package ranking

import "sync"

// itemLocks взаимное исключение по лоту внутри процесса.
// Межпроцессную блокировку даёт OfferStore.Begin.
type itemLocks struct {
	mu    sync.Mutex
	locks map[int64]*itemLock
}

type itemLock struct {
	mu   sync.Mutex
	refs int
}

func newItemLocks() *itemLocks {
	return &itemLocks{locks: make(map[int64]*itemLock)}
}

// lock блокирует лот и возвращает функцию освобождения
func (l *itemLocks) lock(itemID int64) func() {
	l.mu.Lock()
	il, ok := l.locks[itemID]
	if !ok {
		il = &itemLock{}
		l.locks[itemID] = il
	}
	il.refs++
	l.mu.Unlock()

	il.mu.Lock()

	return func() {
		il.mu.Unlock()

		l.mu.Lock()
		il.refs--
		if il.refs == 0 {
			delete(l.locks, itemID)
		}
		l.mu.Unlock()
	}
}

func (l *itemLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
