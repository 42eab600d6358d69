// Package snowflake generates time-ordered int64 ids for outbound events.
// Layout: 41 bit millisecond timestamp | 10 bit node | 12 bit sequence.
package snowflake

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

const (
	// Epoch is 2024-01-01 00:00:00 UTC in milliseconds.
	Epoch int64 = 1704067200000

	nodeBits     = 10
	sequenceBits = 12

	MaxNodeID    int64 = -1 ^ (-1 << nodeBits)
	sequenceMask int64 = -1 ^ (-1 << sequenceBits)

	nodeShift      = sequenceBits
	timestampShift = sequenceBits + nodeBits
)

var (
	ErrInvalidNodeID       = errors.New("node id out of range")
	ErrClockMovedBackwards = errors.New("clock moved backwards")
)

type Generator struct {
	mu       sync.Mutex
	nodeID   int64
	sequence int64
	lastMs   int64
	now      func() time.Time
}

func NewGenerator(nodeID int64) (*Generator, error) {
	if nodeID < 0 || nodeID > MaxNodeID {
		return nil, ErrInvalidNodeID
	}
	return &Generator{nodeID: nodeID, lastMs: -1, now: time.Now}, nil
}

// NextID spins to the next millisecond once the sequence is used up.
func (g *Generator) NextID() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms < g.lastMs {
		return 0, ErrClockMovedBackwards
	}
	if ms == g.lastMs {
		g.sequence = (g.sequence + 1) & sequenceMask
		if g.sequence == 0 {
			for ms <= g.lastMs {
				ms = g.now().UnixMilli()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastMs = ms

	return (ms-Epoch)<<timestampShift | g.nodeID<<nodeShift | g.sequence, nil
}

// NextString is NextID in decimal, the form carried in event payloads.
func (g *Generator) NextString() (string, error) {
	id, err := g.NextID()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

// Parse splits id into its wall time, node and sequence.
func Parse(id int64) (ts time.Time, nodeID, sequence int64) {
	ms := id>>timestampShift + Epoch
	return time.UnixMilli(ms), (id >> nodeShift) & MaxNodeID, id & sequenceMask
}
