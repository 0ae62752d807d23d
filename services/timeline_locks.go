package services

import (
	"sync"

	"github.com/google/uuid"
)

const timelineStripes = 64

// timelineLocks serializes insert+publish per conversation within this process so room
// subscribers see messages in the order they were persisted.
type timelineLocks struct {
	stripes [timelineStripes]sync.Mutex
}

func (l *timelineLocks) stripe(conversationID uuid.UUID) *sync.Mutex {
	return &l.stripes[int(conversationID[0])%timelineStripes]
}

func (l *timelineLocks) lock(conversationID uuid.UUID) func() {
	m := l.stripe(conversationID)
	m.Lock()
	return m.Unlock
}
