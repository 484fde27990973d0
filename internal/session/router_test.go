package session

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterUnknownSession(t *testing.T) {
	r := NewRouter(0)
	unsub, err := r.Subscribe(ID(99), nil, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.NotPanics(t, unsub)
}

func TestRouterBacklogDropsOldest(t *testing.T) {
	r := NewRouter(8)
	s := r.open(ID(1))

	s.publish([]byte("aaaa"))
	s.publish([]byte("bbbb"))
	s.publish([]byte("cccc"))

	rec := newRecorder()
	_, err := r.Subscribe(ID(1), rec.onData, rec.onExit)
	require.NoError(t, err)
	assert.Equal(t, []string{"bbbb", "cccc"}, rec.chunks())
}

func TestRouterKeepsOversizedSingleChunk(t *testing.T) {
	r := NewRouter(4)
	s := r.open(ID(1))
	s.publish([]byte(strings.Repeat("x", 10)))

	rec := newRecorder()
	_, err := r.Subscribe(ID(1), rec.onData, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{strings.Repeat("x", 10)}, rec.chunks())
}

func TestRouterFanOutAndUnsubscribe(t *testing.T) {
	r := NewRouter(0)
	s := r.open(ID(1))

	first, second := newRecorder(), newRecorder()
	unsubFirst, err := r.Subscribe(ID(1), first.onData, first.onExit)
	require.NoError(t, err)
	_, err = r.Subscribe(ID(1), second.onData, second.onExit)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Subscribers(ID(1)))

	s.publish([]byte("one"))
	unsubFirst()
	unsubFirst()
	s.publish([]byte("two"))
	s.publishExit(Exit{Code: 0})

	assert.Equal(t, []string{"one"}, first.chunks())
	assert.Equal(t, 0, first.exitCount())
	assert.Equal(t, []string{"one", "two"}, second.chunks())
	assert.Equal(t, 1, second.exitCount())
	assert.Equal(t, 0, r.Subscribers(ID(1)))
}

func TestRouterExitDeliveredOnce(t *testing.T) {
	r := NewRouter(0)
	s := r.open(ID(1))

	rec := newRecorder()
	_, err := r.Subscribe(ID(1), rec.onData, rec.onExit)
	require.NoError(t, err)

	s.publishExit(Exit{Code: 2})
	s.publishExit(Exit{Code: 3})
	s.publish([]byte("after"))

	assert.Equal(t, 1, rec.exitCount())
	assert.Equal(t, 2, rec.waitExit(t).Code)
	assert.Empty(t, rec.chunks())
}

func TestRouterKilledWithoutSubscribersIsDropped(t *testing.T) {
	r := NewRouter(0)
	s := r.open(ID(1))
	s.publish([]byte("x"))
	s.publishExit(Exit{Code: -1, Killed: true})

	_, err := r.Subscribe(ID(1), nil, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRouterPanickingSubscriberIsIsolated(t *testing.T) {
	r := NewRouter(0)
	s := r.open(ID(1))

	_, err := r.Subscribe(ID(1), func([]byte) { panic("boom") }, nil)
	require.NoError(t, err)
	rec := newRecorder()
	_, err = r.Subscribe(ID(1), rec.onData, rec.onExit)
	require.NoError(t, err)

	assert.NotPanics(t, func() { s.publish([]byte("still here")) })
	assert.Equal(t, []string{"still here"}, rec.chunks())
}

func TestRouterKillFromCallbackDoesNotDeadlock(t *testing.T) {
	reg, host := newTestRegistry(t)
	id, err := reg.Create(context.Background(), CreateOptions{})
	require.NoError(t, err)

	rec := newRecorder()
	_, err = reg.Router().Subscribe(id, func(b []byte) {
		rec.onData(b)
		if string(b) == "exit-now" {
			reg.Kill(id)
		}
	}, rec.onExit)
	require.NoError(t, err)

	host.Last().Emit("hello")
	host.Last().Emit("exit-now")

	assert.True(t, rec.waitExit(t).Killed)
	assert.Equal(t, []string{"hello", "exit-now"}, rec.chunks())
}
