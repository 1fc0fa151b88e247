// Package memory is an in-process implementation of every store interface
// the engine consumes. It backs tests and the single-node demo mode and
// honours the same locking contract as the Postgres repositories.
package memory

import (
	"sync"
	"time"

	"bloodbridge/pkg/types"
)

type Store struct {
	mu sync.RWMutex

	donors    map[string]*types.DonorProfile
	schedules map[string]*scheduleRow
	slots     map[string]*types.WeeklySlot
	ranges    map[string]*types.CustomRange
	donations map[string]*types.DonationRecord
	audit     []*types.AuditEntry

	matches    map[string]*types.BloodRequestMatch
	candidates map[string]string // candidate id -> match id
	events     map[string][]*types.MatchEvent

	matchLocks keyedMutex
	donorLocks keyedMutex
}

type scheduleRow struct {
	enabled   bool
	updatedAt time.Time
}

func New() *Store {
	return &Store{
		donors:     make(map[string]*types.DonorProfile),
		schedules:  make(map[string]*scheduleRow),
		slots:      make(map[string]*types.WeeklySlot),
		ranges:     make(map[string]*types.CustomRange),
		donations:  make(map[string]*types.DonationRecord),
		matches:    make(map[string]*types.BloodRequestMatch),
		candidates: make(map[string]string),
		events:     make(map[string][]*types.MatchEvent),
	}
}

// keyedMutex hands out one mutex per key. Entries are never evicted.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}

	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	return l
}
