package motion

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(x, y int) Region {
	return NewRegion(image.Rect(x, y, x+80, y+80), 3000, 4000, 250)
}

func TestLabeler_RoundRobinNames(t *testing.T) {
	l := NewLabeler([]string{"a", "b"}, 0)
	now := time.Unix(100, 0)

	labels := l.Label([]Region{at(0, 0), at(400, 0), at(0, 400)}, now)
	assert.Equal(t, []string{"a", "b", "a"}, labels)
}

func TestLabeler_KeepsNameUnderJitter(t *testing.T) {
	l := NewLabeler([]string{"cow", "dog"}, 0)
	now := time.Unix(100, 0)

	first := l.Label([]Region{at(100, 100)}, now)
	second := l.Label([]Region{at(106, 97)}, now.Add(100*time.Millisecond))
	assert.Equal(t, first, second)
	assert.Len(t, l.Entities(), 1)
}

func TestLabeler_EvictsUnseen(t *testing.T) {
	l := NewLabeler([]string{"cow", "dog"}, 5*time.Second)
	now := time.Unix(100, 0)

	l.Label([]Region{at(100, 100)}, now)
	l.Label([]Region{at(600, 100)}, now.Add(4*time.Second))
	require.Len(t, l.Entities(), 2)

	l.Label(nil, now.Add(5500*time.Millisecond))
	ents := l.Entities()
	require.Len(t, ents, 1)
	assert.Equal(t, "dog", ents[0].Name)
}

func TestLabeler_SeenRefreshesEntity(t *testing.T) {
	l := NewLabeler(nil, 5*time.Second)
	now := time.Unix(100, 0)

	for i := 0; i < 10; i++ {
		l.Label([]Region{at(100, 100)}, now.Add(time.Duration(i)*time.Second))
	}
	ents := l.Entities()
	require.Len(t, ents, 1)
	assert.Equal(t, DefaultNames[0], ents[0].Name)
	assert.Equal(t, now, ents[0].FirstSeen)
}
