package signal

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/cristivoicu/appserver/internal/core/domain"
)

// Topic is one of the named event streams clients can subscribe to.
type Topic string

const (
	TopicUserStatus    Topic = "userStatus"
	TopicUserUpdated   Topic = "userUpdated"
	TopicLiveStreamers Topic = "liveStreamers"
	TopicMapItems      Topic = "mapItems"
	TopicLocation      Topic = "location"
)

// Subscriber receives published envelopes. Send failing marks the subscriber
// dead and the hub drops it from every topic it was on.
type Subscriber interface {
	ID() string
	Send(env *Envelope) error
}

// Hub fans server-side events out to topic subscribers. Publication snapshots
// the subscriber set under the read lock and delivers outside it, so a slow
// or concurrently-unsubscribing client never blocks other deliveries.
type Hub struct {
	mu     sync.RWMutex
	topics map[Topic]map[string]Subscriber
	log    *zap.SugaredLogger
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		topics: make(map[Topic]map[string]Subscriber),
		log:    log,
	}
}

// Subscribe adds the subscriber to a topic. Subscribing twice is a no-op.
func (h *Hub) Subscribe(topic Topic, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[string]Subscriber)
		h.topics[topic] = subs
	}
	subs[sub.ID()] = sub
}

// Unsubscribe removes the subscriber from a topic. Unknown subscriber or
// topic is a no-op.
func (h *Hub) Unsubscribe(topic Topic, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.topics[topic]; ok {
		delete(subs, id)
	}
}

// RemoveAll drops the subscriber from every topic.
func (h *Hub) RemoveAll(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, subs := range h.topics {
		delete(subs, id)
	}
}

// Publish delivers the envelope to every current subscriber of the topic.
// Subscribers whose Send fails are pruned.
func (h *Hub) Publish(topic Topic, env *Envelope) {
	h.mu.RLock()
	snapshot := make([]Subscriber, 0, len(h.topics[topic]))
	for _, sub := range h.topics[topic] {
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	var dead []string
	for _, sub := range snapshot {
		if err := sub.Send(env); err != nil {
			h.log.Debugw("dropping subscriber", "topic", topic, "id", sub.ID(), "error", err)
			dead = append(dead, sub.ID())
		}
	}
	for _, id := range dead {
		h.Unsubscribe(topic, id)
	}
}

// NotifyUserStatus publishes a presence transition.
func (h *Hub) NotifyUserStatus(username string, status domain.Status) {
	h.Publish(TopicUserStatus, &Envelope{
		Method:   MethodSubscribe,
		Event:    string(TopicUserStatus),
		Username: username,
		Status:   string(status),
	})
}

// NotifyUserModified publishes a directory change for one user.
func (h *Hub) NotifyUserModified(user *domain.User) {
	env, err := payloadResponse(&Envelope{Method: MethodSubscribe, Event: string(TopicUserUpdated)}, user)
	if err != nil {
		h.log.Errorw("encode user update", "error", err)
		return
	}
	h.Publish(TopicUserUpdated, env)
}

// NotifyStreamingStarted publishes a streamer going live.
func (h *Hub) NotifyStreamingStarted(s domain.LiveStreamer) {
	h.publishStreamer(s, "started")
}

// NotifyStreamingStopped publishes a streamer going offline.
func (h *Hub) NotifyStreamingStopped(s domain.LiveStreamer) {
	h.publishStreamer(s, "stopped")
}

func (h *Hub) publishStreamer(s domain.LiveStreamer, change string) {
	raw, err := json.Marshal(s)
	if err != nil {
		h.log.Errorw("encode live streamer", "error", err)
		return
	}
	h.Publish(TopicLiveStreamers, &Envelope{
		Method:  MethodSubscribe,
		Event:   string(TopicLiveStreamers),
		Status:  change,
		Payload: raw,
	})
}

// NotifyLocationChanged publishes one user's new location.
func (h *Hub) NotifyLocationChanged(username string, loc domain.Location) {
	raw, err := json.Marshal(loc)
	if err != nil {
		h.log.Errorw("encode location", "error", err)
		return
	}
	h.Publish(TopicLocation, &Envelope{
		Method:   MethodSubscribe,
		Event:    string(TopicLocation),
		Username: username,
		Payload:  raw,
	})
}

// NotifyMapItemsChanged publishes the replaced map item set.
func (h *Hub) NotifyMapItemsChanged(items []*domain.MapItem) {
	env, err := payloadResponse(&Envelope{Method: MethodSubscribe, Event: string(TopicMapItems)}, items)
	if err != nil {
		h.log.Errorw("encode map items", "error", err)
		return
	}
	h.Publish(TopicMapItems, env)
}
