package services

import (
	"sync"

	"github.com/twmb/murmur3"
)

// RoomLocks serializes mutations per room. Rooms hash onto a fixed set of
// mutexes, so two rooms may share a stripe; callers hold at most one stripe
// at a time and never nest.
type RoomLocks struct {
	stripes []sync.Mutex
}

func NewRoomLocks(n int) *RoomLocks {
	if n <= 0 {
		n = 256
	}
	return &RoomLocks{stripes: make([]sync.Mutex, n)}
}

func (l *RoomLocks) stripe(roomID string) *sync.Mutex {
	return &l.stripes[murmur3.Sum32([]byte(roomID))%uint32(len(l.stripes))]
}

// Lock acquires the stripe for roomID and returns its release func.
func (l *RoomLocks) Lock(roomID string) (unlock func()) {
	m := l.stripe(roomID)
	m.Lock()
	return m.Unlock
}
