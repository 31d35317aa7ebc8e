// Package realtime is the in-process pub/sub hub: publishers push domain
// events tagged with an audience, and each subscriber's own filter decides
// whether it receives them.
package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/partnerledger/core/internal/observability/metrics"
	"go.uber.org/fx"
)

const (
	// DefaultMaxSubscribers bounds simultaneous listeners; Subscribe refuses
	// once this many are registered.
	DefaultMaxSubscribers = 500
	// DefaultQueueSize bounds each subscriber's own event queue.
	DefaultQueueSize = 500
)

// EventTypeOverflow is delivered in place of a dropped event once a
// subscriber's queue is full, so the client knows it missed something and
// can reconcile out of band (e.g. a full refetch).
const EventTypeOverflow = "OVERFLOW"

// Audience is a union of targeting filters. An event reaches a subscriber
// if Broadcast is set or the subscriber's own identity matches any
// non-empty field.
type Audience struct {
	Broadcast     bool
	UserIDs       []snowflake.ID
	Roles         []string
	AgencyCodes   []string
	MediatorCodes []string
	BrandCodes    []string
	ParentCodes   []string
}

// Event is one message published to the hub.
type Event struct {
	Type     string
	At       time.Time
	Payload  any
	Audience Audience
}

// Filter describes one subscriber's own identity, matched against an
// Event's Audience on every publish.
type Filter struct {
	UserID       snowflake.ID
	Role         string
	AgencyCode   string
	MediatorCode string
	BrandCode    string
	ParentCode   string
}

var (
	ErrHubUnavailable         = errors.New("HUB_UNAVAILABLE")
	ErrSubscriberLimitReached = errors.New("SUBSCRIBER_LIMIT_REACHED")
)

type subscriber struct {
	id     uint64
	filter Filter
	mu     sync.Mutex
	ch     chan Event
}

// Hub is the single global realtime pub/sub instance. It is safe for
// concurrent use by any number of publishers and subscribers.
type Hub struct {
	mu             sync.RWMutex
	subs           map[uint64]*subscriber
	nextID         uint64
	maxSubscribers int
	queueSize      int
	obsMetrics     *obsmetrics.Metrics
}

// Params is the fx-injected constructor input; ObsMetrics is optional so
// the hub works in tests that don't wire an OpenTelemetry meter.
type Params struct {
	fx.In

	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func NewHub(p Params) *Hub {
	return newHub(p.ObsMetrics)
}

func newHub(obsMetrics *obsmetrics.Metrics) *Hub {
	return &Hub{
		subs:           make(map[uint64]*subscriber),
		maxSubscribers: DefaultMaxSubscribers,
		queueSize:      DefaultQueueSize,
		obsMetrics:     obsMetrics,
	}
}

// Subscription is the handle returned by Subscribe. Close releases it;
// callers on a transport (e.g. SSE) MUST close it when the connection ends.
type Subscription struct {
	hub  *Hub
	id   uint64
	ch   chan Event
	once sync.Once
}

// Events returns the channel events are delivered on, in publish order.
func (s *Subscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.id)
	})
}

// Subscribe registers a listener matching filter. It refuses once
// DefaultMaxSubscribers are already registered.
func (h *Hub) Subscribe(ctx context.Context, filter Filter) (*Subscription, error) {
	if h == nil {
		return nil, ErrHubUnavailable
	}

	h.mu.Lock()
	if len(h.subs) >= h.maxSubscribers {
		h.mu.Unlock()
		return nil, ErrSubscriberLimitReached
	}
	id := h.nextID
	h.nextID++
	sub := &subscriber{
		id:     id,
		filter: filter,
		ch:     make(chan Event, h.queueSize),
	}
	h.subs[id] = sub
	h.mu.Unlock()

	return &Subscription{hub: h, id: id, ch: sub.ch}, nil
}

func (h *Hub) unsubscribe(id uint64) {
	if h == nil {
		return
	}
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Publish delivers evt to every subscriber whose filter matches its
// audience. Delivery never blocks: a subscriber behind on consumption has
// its oldest event dropped and replaced with an OVERFLOW marker.
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		if matches(sub.filter, evt.Audience) {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		h.deliver(sub, evt)
	}
}

func (h *Hub) deliver(sub *subscriber, evt Event) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	select {
	case sub.ch <- evt:
		h.record(evt.Type, false)
		return
	default:
	}

	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- Event{Type: EventTypeOverflow, At: time.Now().UTC()}:
		h.record(evt.Type, true)
	default:
	}
}

func (h *Hub) record(eventType string, dropped bool) {
	if h.obsMetrics == nil {
		return
	}
	ctx := context.Background()
	if dropped {
		h.obsMetrics.RecordRealtimeDropped(ctx, eventType)
		return
	}
	h.obsMetrics.RecordRealtimeDelivered(ctx, eventType)
}

func matches(f Filter, a Audience) bool {
	if a.Broadcast {
		return true
	}
	for _, id := range a.UserIDs {
		if id == f.UserID {
			return true
		}
	}
	if containsNonEmpty(a.Roles, f.Role) {
		return true
	}
	if containsNonEmpty(a.AgencyCodes, f.AgencyCode) {
		return true
	}
	if containsNonEmpty(a.MediatorCodes, f.MediatorCode) {
		return true
	}
	if containsNonEmpty(a.BrandCodes, f.BrandCode) {
		return true
	}
	if containsNonEmpty(a.ParentCodes, f.ParentCode) {
		return true
	}
	return false
}

func containsNonEmpty(haystack []string, needle string) bool {
	if needle == "" {
		return false
	}
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
