package view

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSubscriberList(t *testing.T) {
	sl := NewSubscriberList()
	a := &wsConnection{id: uuid.New()}
	b := &wsConnection{id: uuid.New()}

	assert.Equal(t, 1, sl.Add(a))
	assert.Equal(t, 2, sl.Add(b))
	assert.Equal(t, 2, sl.Add(a), "re-adding the same id does not grow the list")

	seen := map[uuid.UUID]bool{}
	sl.Each(func(c *wsConnection) { seen[c.id] = true })
	assert.Equal(t, map[uuid.UUID]bool{a.id: true, b.id: true}, seen)

	assert.Equal(t, 1, sl.Remove(a.id))
	assert.Equal(t, 1, sl.Remove(a.id))
	assert.Equal(t, 0, sl.Remove(b.id))
	assert.Equal(t, 0, sl.Len())
}
