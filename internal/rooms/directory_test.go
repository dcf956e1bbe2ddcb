package rooms

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/nfrund/chatrelay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMember struct {
	id string
}

func (f *fakeMember) SessionID() string { return f.id }

func (f *fakeMember) Deliver(ctx context.Context, msg domain.Message) error { return nil }

func ids(members []Member) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.SessionID())
	}
	return out
}

func TestDirectory_JoinIsIdempotent(t *testing.T) {
	d := NewDirectory()
	a := &fakeMember{id: "a"}

	require.NoError(t, d.Join("r1", a))
	require.NoError(t, d.Join("r1", a))

	members := d.MembersOf("r1")
	assert.Len(t, members, 1)
	assert.Equal(t, []string{"a"}, ids(members))
	assert.Equal(t, []string{"r1"}, d.RoomsOf("a"))
}

func TestDirectory_JoinRejectsInvalidRoom(t *testing.T) {
	d := NewDirectory()
	a := &fakeMember{id: "a"}

	err := d.Join("", a)
	assert.ErrorIs(t, err, domain.ErrInvalidRoom)
	err = d.Join("has space", a)
	assert.ErrorIs(t, err, domain.ErrInvalidRoom)

	assert.Empty(t, d.RoomsOf("a"))
	assert.Equal(t, Stats{}, d.Stats())
}

func TestDirectory_LeaveIsIdempotent(t *testing.T) {
	d := NewDirectory()
	a := &fakeMember{id: "a"}
	b := &fakeMember{id: "b"}

	require.NoError(t, d.Join("r1", a))
	require.NoError(t, d.Join("r1", b))

	d.Leave("r1", a)
	d.Leave("r1", a)
	d.Leave("never-joined", a)

	assert.Equal(t, []string{"b"}, ids(d.MembersOf("r1")))
	assert.False(t, d.IsMember("r1", "a"))
	assert.True(t, d.IsMember("r1", "b"))
}

func TestDirectory_RemoveAll(t *testing.T) {
	d := NewDirectory()
	a := &fakeMember{id: "a"}
	b := &fakeMember{id: "b"}

	require.NoError(t, d.Join("r1", a))
	require.NoError(t, d.Join("r2", a))
	require.NoError(t, d.Join("r1", b))

	removed := d.RemoveAll(a)
	assert.ElementsMatch(t, []string{"r1", "r2"}, removed)

	assert.Equal(t, []string{"b"}, ids(d.MembersOf("r1")))
	assert.Empty(t, d.MembersOf("r2"))
	assert.Empty(t, d.RoomsOf("a"))
	assert.Equal(t, Stats{Rooms: 1, Sessions: 1}, d.Stats())

	assert.Empty(t, d.RemoveAll(a), "second removal is a no-op")
}

func TestDirectory_MembersOfIsSnapshot(t *testing.T) {
	d := NewDirectory()
	a := &fakeMember{id: "a"}
	b := &fakeMember{id: "b"}
	require.NoError(t, d.Join("r1", a))

	snapshot := d.MembersOf("r1")
	require.NoError(t, d.Join("r1", b))
	d.Leave("r1", a)

	assert.Equal(t, []string{"a"}, ids(snapshot))
	assert.Equal(t, []string{"b"}, ids(d.MembersOf("r1")))
}

func TestDirectory_ConcurrentJoinRemoveAll(t *testing.T) {
	d := NewDirectory()
	const sessions = 50

	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		m := &fakeMember{id: fmt.Sprintf("s%d", i)}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < 5; r++ {
				_ = d.Join(fmt.Sprintf("r%d", r), m)
				_ = d.MembersOf("r0")
			}
			d.RemoveAll(m)
		}()
	}

	// Every snapshot must be internally consistent: no duplicates.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			seen := map[string]bool{}
			for _, m := range d.MembersOf("r0") {
				assert.False(t, seen[m.SessionID()], "duplicate member in snapshot")
				seen[m.SessionID()] = true
			}
		}
	}()

	wg.Wait()
	<-done
	assert.Equal(t, Stats{}, d.Stats())
}
