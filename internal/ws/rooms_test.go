package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestConnection(id string) *Connection {
	return &Connection{ID: id, state: StateOpen, sendCh: make(chan outboundFrame, sendQueueMaxFrames)}
}

func drainSend(t *testing.T, c *Connection) []byte {
	t.Helper()
	select {
	case of := <-c.sendCh:
		return of.payload
	default:
		return nil
	}
}

func TestRegistry_JoinAndRooms(t *testing.T) {
	r := NewRegistry()
	r.Join("a", "lobby")
	r.Join("a", "vip")

	rooms := r.Rooms("a")
	assert.ElementsMatch(t, []string{"lobby", "vip"}, rooms)
}

func TestRegistry_LeaveDeletesEmptyRoom(t *testing.T) {
	r := NewRegistry()
	r.Join("a", "lobby")
	r.Leave("a", "lobby")

	assert.Empty(t, r.Rooms("a"))
	r.mu.Lock()
	_, exists := r.rooms["lobby"]
	r.mu.Unlock()
	assert.False(t, exists)
}

func TestRegistry_RemoveEvictsFromAllRooms(t *testing.T) {
	r := NewRegistry()
	c := newTestConnection("a")
	r.Add(c)
	r.Join("a", "lobby")
	r.Join("a", "vip")

	r.Remove("a")

	assert.Empty(t, r.Rooms("a"))
	_, ok := r.ConnByID("a")
	assert.False(t, ok)
	r.mu.Lock()
	assert.Empty(t, r.rooms)
	r.mu.Unlock()
}

func TestRegistry_BroadcastToExplicitRoomExcludesSender(t *testing.T) {
	r := NewRegistry()
	sender := newTestConnection("sender")
	other := newTestConnection("other")
	bystander := newTestConnection("bystander")
	r.Add(sender)
	r.Add(other)
	r.Add(bystander)
	r.Join("sender", "lobby")
	r.Join("other", "lobby")

	r.Broadcast("sender", []byte("hi"), true, BroadcastOptions{Room: "lobby"})

	assert.Equal(t, []byte("hi"), drainSend(t, other))
	assert.Nil(t, drainSend(t, sender))
	assert.Nil(t, drainSend(t, bystander))
}

func TestRegistry_BroadcastIncludeSelf(t *testing.T) {
	r := NewRegistry()
	sender := newTestConnection("sender")
	r.Add(sender)
	r.Join("sender", "lobby")

	r.Broadcast("sender", []byte("echo"), true, BroadcastOptions{Room: "lobby", IncludeSelf: true})

	assert.Equal(t, []byte("echo"), drainSend(t, sender))
}

func TestRegistry_BroadcastFallsBackToSendersRoomsWhenNoExplicitRoom(t *testing.T) {
	r := NewRegistry()
	sender := newTestConnection("sender")
	roommate := newTestConnection("roommate")
	other := newTestConnection("other")
	r.Add(sender)
	r.Add(roommate)
	r.Add(other)
	r.Join("sender", "lobby")
	r.Join("roommate", "lobby")

	r.Broadcast("sender", []byte("hi"), true, BroadcastOptions{})

	assert.Equal(t, []byte("hi"), drainSend(t, roommate))
	assert.Nil(t, drainSend(t, other))
}

func TestRegistry_BroadcastFromRoomlessSenderReachesEveryConnection(t *testing.T) {
	r := NewRegistry()
	sender := newTestConnection("sender")
	a := newTestConnection("a")
	b := newTestConnection("b")
	r.Add(sender)
	r.Add(a)
	r.Add(b)

	r.Broadcast("sender", []byte("all"), true, BroadcastOptions{})

	assert.Equal(t, []byte("all"), drainSend(t, a))
	assert.Equal(t, []byte("all"), drainSend(t, b))
}
