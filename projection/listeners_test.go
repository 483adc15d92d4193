package projection

import (
	"guide-chat/domain"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestListeners_DeliversInStampOrder(t *testing.T) {
	req := require.New(t)
	var l Listeners[string]
	var seen []string
	l.Subscribe(func(v string) { seen = append(seen, v) })

	first, second := l.Stamp(), l.Stamp()
	l.Notify(second, "second")
	req.Empty(seen, "a later value waits for the earlier one")

	l.Notify(first, "first")
	req.Equal([]string{"first", "second"}, seen)
}

func TestListeners_ReentrantNotifyDoesNotDeadlock(t *testing.T) {
	req := require.New(t)
	var l Listeners[int]
	var seen []int
	l.Subscribe(func(v int) {
		seen = append(seen, v)
		if v < 3 {
			l.Emit(v + 1)
		}
	})

	l.Emit(1)
	req.Equal([]int{1, 2, 3}, seen)
}

func TestMessageThread_Subscribe_LastCallbackIsCurrentState(t *testing.T) {
	req := require.New(t)
	thread := openThread(t, "c1")

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var mu sync.Mutex
	var last ThreadState
	thread.Subscribe(func(state ThreadState) {
		once.Do(func() {
			close(entered)
			<-release
		})
		mu.Lock()
		last = state
		mu.Unlock()
	})

	// Given a subscriber stuck on the first change
	done := make(chan struct{})
	go func() {
		defer close(done)
		thread.ApplyMessage(message("m1", "c1", t0))
	}()
	<-entered

	// When a second change lands meanwhile
	req.True(thread.ApplyMessage(message("m2", "c1", t0.Add(time.Minute))))
	close(release)
	<-done

	// Then the last state delivered is the one the store holds
	req.Len(thread.Messages(), 2)
	mu.Lock()
	defer mu.Unlock()
	req.Equal([]domain.MessageID{"m1", "m2"}, ids(last.Messages))
}
