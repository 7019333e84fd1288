package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatchOrderIsRegistrationOrder(t *testing.T) {
	bus := New[int]()
	var order []string

	bus.Register("open", func(event string, payload int) { order = append(order, "first") })
	bus.Register("open", func(event string, payload int) { order = append(order, "second") })
	bus.Register("open", func(event string, payload int) { order = append(order, "third") })

	bus.Dispatch("open", 1)

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestDispatchOnlyMatchingEvent(t *testing.T) {
	bus := New[string]()
	var got []string

	bus.Register("open", func(event string, payload string) { got = append(got, payload) })
	bus.Register("close", func(event string, payload string) { got = append(got, "wrong:"+payload) })

	bus.Dispatch("open", "a")

	assert.Equal(t, []string{"a"}, got)
}

func TestPanickingListenerDoesNotStopOthers(t *testing.T) {
	bus := New[int]()
	ran := false

	bus.Register("tick", func(event string, payload int) { panic("boom") })
	bus.Register("tick", func(event string, payload int) { ran = true })

	assert.NotPanics(t, func() { bus.Dispatch("tick", 1) })
	assert.True(t, ran)
}

func TestUnregisterRemovesListener(t *testing.T) {
	bus := New[int]()
	calls := 0

	id := bus.Register("tick", func(event string, payload int) { calls++ })
	bus.Dispatch("tick", 1)
	bus.Unregister("tick", id)
	bus.Dispatch("tick", 1)

	assert.Equal(t, 1, calls)
}
