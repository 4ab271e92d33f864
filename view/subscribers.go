package view

import (
	"sync"

	"github.com/google/uuid"
)

type SubscriberList struct {
	subscribers map[uuid.UUID]*wsConnection
	mu          sync.RWMutex
}

func NewSubscriberList() *SubscriberList {
	return &SubscriberList{
		subscribers: make(map[uuid.UUID]*wsConnection),
	}
}

func (sl *SubscriberList) Add(conn *wsConnection) int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.subscribers[conn.id] = conn
	return len(sl.subscribers)
}

func (sl *SubscriberList) Remove(id uuid.UUID) int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	delete(sl.subscribers, id)
	return len(sl.subscribers)
}

func (sl *SubscriberList) Len() int {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return len(sl.subscribers)
}

// Each calls fn for every subscriber under the read lock
func (sl *SubscriberList) Each(fn func(*wsConnection)) {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	for _, conn := range sl.subscribers {
		fn(conn)
	}
}
