package signal

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cristivoicu/appserver/internal/core/domain"
	"github.com/cristivoicu/appserver/pkg/logger"
)

type stubSubscriber struct {
	id      string
	mu      sync.Mutex
	got     []*Envelope
	sendErr error
}

func (s *stubSubscriber) ID() string { return s.id }

func (s *stubSubscriber) Send(env *Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.got = append(s.got, env)
	return nil
}

func (s *stubSubscriber) received() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func TestHubPublishReachesSubscribers(t *testing.T) {
	h := NewHub(logger.Nop())
	a := &stubSubscriber{id: "a"}
	b := &stubSubscriber{id: "b"}

	h.Subscribe(TopicUserStatus, a)
	h.Subscribe(TopicUserStatus, b)
	h.Subscribe(TopicUserStatus, a) // idempotent

	h.NotifyUserStatus("alice", domain.StatusOnline)

	assert.Equal(t, 1, a.received())
	assert.Equal(t, 1, b.received())

	a.mu.Lock()
	env := a.got[0]
	a.mu.Unlock()
	assert.Equal(t, "alice", env.Username)
	assert.Equal(t, string(domain.StatusOnline), env.Status)
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub(logger.Nop())
	a := &stubSubscriber{id: "a"}

	h.Subscribe(TopicLiveStreamers, a)
	h.Unsubscribe(TopicLiveStreamers, "a")
	h.Unsubscribe(TopicLiveStreamers, "a")      // no-op
	h.Unsubscribe(TopicMapItems, "a")           // never subscribed
	h.Unsubscribe(Topic("unknown-topic"), "a")  // unknown topic

	h.NotifyStreamingStarted(domain.LiveStreamer{Name: "Alice", Username: "alice"})
	assert.Zero(t, a.received())
}

func TestHubPrunesFailingSubscriber(t *testing.T) {
	h := NewHub(logger.Nop())
	ok := &stubSubscriber{id: "ok"}
	dead := &stubSubscriber{id: "dead", sendErr: errors.New("gone")}

	h.Subscribe(TopicUserUpdated, ok)
	h.Subscribe(TopicUserUpdated, dead)

	h.NotifyUserModified(&domain.User{Username: "alice", Name: "Alice"})
	assert.Equal(t, 1, ok.received())

	// the failing subscriber was dropped; a recovered Send never sees the
	// next publish
	dead.mu.Lock()
	dead.sendErr = nil
	dead.mu.Unlock()

	h.NotifyUserModified(&domain.User{Username: "alice", Name: "Alice"})
	assert.Equal(t, 2, ok.received())
	assert.Zero(t, dead.received())
}

func TestHubRemoveAllDropsEveryTopic(t *testing.T) {
	h := NewHub(logger.Nop())
	a := &stubSubscriber{id: "a"}

	h.Subscribe(TopicUserStatus, a)
	h.Subscribe(TopicLocation, a)
	h.Subscribe(TopicMapItems, a)

	h.RemoveAll("a")

	h.NotifyUserStatus("alice", domain.StatusOffline)
	h.NotifyLocationChanged("alice", domain.Location{Lat: 1, Lng: 2})
	h.NotifyMapItemsChanged(nil)

	assert.Zero(t, a.received())
}

func TestHubPublishDuringConcurrentUnsubscribe(t *testing.T) {
	h := NewHub(logger.Nop())

	subs := make([]*stubSubscriber, 16)
	for i := range subs {
		subs[i] = &stubSubscriber{id: string(rune('a' + i))}
		h.Subscribe(TopicUserStatus, subs[i])
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			h.NotifyUserStatus("alice", domain.StatusOnline)
		}
	}()
	go func() {
		defer wg.Done()
		for _, s := range subs {
			h.Unsubscribe(TopicUserStatus, s.id)
		}
	}()
	wg.Wait()

	// deliveries stop for good once a subscriber is gone
	h.NotifyUserStatus("alice", domain.StatusOffline)
	for _, s := range subs {
		require.LessOrEqual(t, s.received(), 100)
	}
}
