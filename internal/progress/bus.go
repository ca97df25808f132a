package progress

import (
	"sync"
	"time"

	"github.com/FranksOps/securescan/internal/scan"
)

// Event is one scan-progress update, shaped for the wire.
type Event struct {
	ScanID                 string         `json:"scanId"`
	Status                 string         `json:"status"`
	Progress               int            `json:"progress"`
	PagesScanned           int            `json:"pagesScanned"`
	TotalPages             int            `json:"totalPages"`
	VulnerabilitiesFound   int            `json:"vulnerabilitiesFound"`
	FormsFound             int            `json:"formsFound"`
	EndpointsTested        int            `json:"endpointsTested"`
	EstimatedTimeRemaining int            `json:"estimatedTimeRemaining"`
	StartTime              time.Time      `json:"startTime"`
	CurrentStage           string         `json:"currentStage"`
	Vulnerabilities        []scan.Finding `json:"vulnerabilities,omitempty"`
}

// Update is what subscribers receive: either a progress event or an error.
type Update struct {
	Type    string `json:"type"` // "scan-progress" or "scan-error"
	ScanID  string `json:"scanId"`
	Event   *Event `json:"event,omitempty"`
	Message string `json:"message,omitempty"`
}

const (
	TypeProgress = "scan-progress"
	TypeError    = "scan-error"
)

// subscriberBuffer bounds how far a slow subscriber may lag before updates
// are dropped. Delivery is best-effort.
const subscriberBuffer = 16

// Bus fans out progress updates to the subscribers of each scan. The latest
// progress event per scan is cached and replayed to late joiners; there is
// no further history.
type Bus struct {
	mu     sync.Mutex
	subs   map[string]map[chan Update]struct{}
	latest map[string]*Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs:   make(map[string]map[chan Update]struct{}),
		latest: make(map[string]*Event),
	}
}

// Subscribe registers an observer for one scan. The returned channel first
// yields the cached latest event, if any, then every subsequent update.
// cancel removes the subscription and closes the channel.
func (b *Bus) Subscribe(scanID string) (updates <-chan Update, cancel func()) {
	ch := make(chan Update, subscriberBuffer)

	b.mu.Lock()
	if b.subs[scanID] == nil {
		b.subs[scanID] = make(map[chan Update]struct{})
	}
	b.subs[scanID][ch] = struct{}{}
	if ev := b.latest[scanID]; ev != nil {
		ch <- Update{Type: TypeProgress, ScanID: scanID, Event: ev}
	}
	b.mu.Unlock()

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			b.mu.Lock()
			if set := b.subs[scanID]; set != nil {
				delete(set, ch)
				if len(set) == 0 {
					delete(b.subs, scanID)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers a progress event to all current subscribers of the scan
// and caches it for late joiners. Slow subscribers lose updates rather than
// blocking the publisher.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cached := ev
	b.latest[ev.ScanID] = &cached

	for ch := range b.subs[ev.ScanID] {
		select {
		case ch <- Update{Type: TypeProgress, ScanID: ev.ScanID, Event: &cached}:
		default:
		}
	}
}

// PublishError broadcasts a scan-error message. Errors are not cached.
func (b *Bus) PublishError(scanID, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[scanID] {
		select {
		case ch <- Update{Type: TypeError, ScanID: scanID, Message: message}:
		default:
		}
	}
}

// Latest returns the cached last event for a scan, or nil.
func (b *Bus) Latest(scanID string) *Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest[scanID]
}

// Forget drops the cached event for a scan. Existing subscriptions stay
// registered until their cancel func is called. Called after the final
// result is persisted.
func (b *Bus) Forget(scanID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.latest, scanID)
}
