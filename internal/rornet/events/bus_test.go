package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOnEmitOrder(t *testing.T) {
	b := NewBus()
	var order []int
	b.On("tick", func(args ...any) { order = append(order, 1) })
	b.On("tick", func(args ...any) { order = append(order, 2) })
	b.On("tick", func(args ...any) { order = append(order, 3) })

	b.Emit("tick")
	assert.Equal(t, []int{1, 2, 3}, order)

	b.Emit("tick")
	assert.Equal(t, []int{1, 2, 3, 1, 2, 3}, order)
}

func TestEmitArgs(t *testing.T) {
	b := NewBus()
	var got []any
	b.On("chat", func(args ...any) { got = args })
	b.Emit("chat", uint32(7), "hello")
	assert.Equal(t, []any{uint32(7), "hello"}, got)
}

func TestOnceFiresExactlyOnce(t *testing.T) {
	b := NewBus()
	calls := 0
	b.Once("tick", func(args ...any) { calls++ })
	b.Emit("tick")
	b.Emit("tick")
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, b.ListenerCount("tick"))
}

func TestOnceReentrantEmit(t *testing.T) {
	b := NewBus()
	calls := 0
	b.Once("tick", func(args ...any) {
		calls++
		// Already consumed; must not run again.
		b.Emit("tick")
	})
	b.Emit("tick")
	assert.Equal(t, 1, calls)
}

func TestRemoveListener(t *testing.T) {
	b := NewBus()
	calls := 0
	fn := Listener(func(args ...any) { calls++ })
	b.On("tick", fn)
	b.On("tick", func(args ...any) { calls += 10 })

	b.RemoveListener("tick", fn)
	b.Emit("tick")
	assert.Equal(t, 10, calls)
	assert.Equal(t, 1, b.ListenerCount("tick"))

	// Removing a listener that was never added is a no-op.
	b.RemoveListener("tick", fn)
	assert.Equal(t, 1, b.ListenerCount("tick"))
}

func TestNewListenerMetaEvent(t *testing.T) {
	b := NewBus()
	var seen []string
	b.On(NewListener, func(args ...any) {
		seen = append(seen, args[0].(string))
	})
	b.On("chat", func(args ...any) {})
	b.Once("tick", func(args ...any) {})
	assert.Equal(t, []string{"chat", "tick"}, seen)
}

func TestHandlerPanicRoutedToErrorEvent(t *testing.T) {
	b := NewBus()
	var caught error
	b.On(Error, func(args ...any) { caught = args[0].(error) })

	b.On("tick", func(args ...any) { panic(errors.New("boom")) })
	after := 0
	b.On("tick", func(args ...any) { after++ })

	b.Emit("tick")
	assert.EqualError(t, caught, "boom")
	assert.Equal(t, 1, after, "dispatch continues past a panicking handler")
}

func TestHandlerPanicWithoutErrorListener(t *testing.T) {
	b := NewBus()
	b.On("tick", func(args ...any) { panic("raw panic") })
	assert.NotPanics(t, func() { b.Emit("tick") })
}

func TestErrorHandlerPanicDoesNotRecurse(t *testing.T) {
	b := NewBus()
	b.On(Error, func(args ...any) { panic("error handler broken") })
	b.On("tick", func(args ...any) { panic("boom") })
	assert.NotPanics(t, func() { b.Emit("tick") })
}
