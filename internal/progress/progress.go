// Package progress implements the typed event bus spec.md §4.6/§9 calls
// for: a multi-producer, multi-consumer broadcast that never blocks a
// producer and lets each subscriber filter the events it cares about.
// Grounded on services/api/internal/listenparty/listenparty.go's hub — a
// register/unregister/broadcast channel trio drained by one goroutine,
// state guarded by a RWMutex, sends to slow consumers dropped rather than
// blocked — generalized from listenparty's one-hub-per-session model to a
// single bus shared by every importer/transfer/playback component, with
// the per-session routing replaced by per-subscription filter predicates.
package progress

import "sync"

// Kind is the event's variant, per spec.md §6's "Progress event schema".
type Kind string

const (
	KindStarted   Kind = "Started"
	KindPreparing Kind = "Preparing"
	KindProgress  Kind = "Progress"
	KindComplete  Kind = "Complete"
	KindFailed    Kind = "Failed"
)

// Step names the Preparing event's pipeline stage (spec.md §4.6).
type Step string

const (
	StepParsingMetadata     Step = "ParsingMetadata"
	StepDownloadingCoverArt Step = "DownloadingCoverArt"
	StepDiscoveringFiles    Step = "DiscoveringFiles"
	StepValidatingTracks    Step = "ValidatingTracks"
	StepSavingToDatabase    Step = "SavingToDatabase"
	StepExtractingDurations Step = "ExtractingDurations"
)

// Phase names the Progress event's phase (spec.md §4.6, §6).
type Phase string

const (
	PhaseAcquire Phase = "Acquire"
	PhaseStore   Phase = "Store"
	PhaseNone    Phase = "None"
)

// Event is one point on the bus. Not every field is meaningful for every
// Kind; see the per-Kind constructors below, which only set the fields
// their variant uses.
type Event struct {
	Kind Kind

	ID       string  // release_id, track_id, or file_id, depending on Kind/producer
	ImportID *string // the ImportOperation this event belongs to, if any

	Step Step // Preparing only

	Percent int   // Progress only
	Phase   Phase // Progress only

	ReleaseID *string // Complete only; nil means ID above already is the release

	Error string // Failed only
}

func Started(id string, importID *string) Event {
	return Event{Kind: KindStarted, ID: id, ImportID: importID}
}

func Preparing(importID string, step Step) Event {
	return Event{Kind: KindPreparing, ImportID: &importID, Step: step}
}

func Progress(id string, percent int, phase Phase, importID *string) Event {
	return Event{Kind: KindProgress, ID: id, Percent: percent, Phase: phase, ImportID: importID}
}

func Complete(id string, releaseID *string, importID *string) Event {
	return Event{Kind: KindComplete, ID: id, ReleaseID: releaseID, ImportID: importID}
}

func Failed(id string, err error, importID *string) Event {
	return Event{Kind: KindFailed, ID: id, Error: err.Error(), ImportID: importID}
}

// Filter decides whether a subscriber wants to see an event. Subscribers
// that want everything pass nil.
type Filter func(Event) bool

// ForRelease returns a Filter that admits only events whose ID matches
// releaseID, directly or via ReleaseID (the Complete event's alternate
// field — spec.md §6 notes "release_id=None ⇒ id is the release").
func ForRelease(releaseID string) Filter {
	return func(e Event) bool {
		if e.ID == releaseID {
			return true
		}
		return e.ReleaseID != nil && *e.ReleaseID == releaseID
	}
}

// ForImport returns a Filter that admits only events carrying the given
// ImportID.
func ForImport(importID string) Filter {
	return func(e Event) bool {
		return e.ImportID != nil && *e.ImportID == importID
	}
}

const subscriberBuffer = 64

// Subscription is a filtered view onto the Bus. Events the subscriber
// can't keep up with are dropped, never blocking the publisher.
type Subscription struct {
	C   <-chan Event
	bus *Bus
	id  uint64
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.unregister <- s.id
}

type subscriber struct {
	id     uint64
	ch     chan Event
	filter Filter
}

// Bus is a running event broadcaster. Call New to obtain one; it starts
// its own goroutine and runs until Close.
type Bus struct {
	publish    chan Event
	register   chan *subscriber
	unregister chan uint64
	done       chan struct{}

	mu     sync.Mutex // guards closed, nextID; subscribers map only touched by run()
	closed bool
	nextID uint64
}

// New starts a Bus and returns it.
func New() *Bus {
	// register is unbuffered: Subscribe returns only after run() has added
	// the subscriber, so events published afterwards reach it.
	b := &Bus{
		publish:    make(chan Event, 256),
		register:   make(chan *subscriber),
		unregister: make(chan uint64, 16),
		done:       make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Bus) run() {
	subs := make(map[uint64]*subscriber)
	for {
		select {
		case <-b.done:
			for _, s := range subs {
				close(s.ch)
			}
			return
		case s := <-b.register:
			subs[s.id] = s
		case id := <-b.unregister:
			if s, ok := subs[id]; ok {
				delete(subs, id)
				close(s.ch)
			}
		case e := <-b.publish:
			for _, s := range subs {
				if s.filter != nil && !s.filter(e) {
					continue
				}
				select {
				case s.ch <- e:
				default:
				}
			}
		}
	}
}

// Publish emits an event to every subscriber whose filter admits it.
// Never blocks: a full subscriber channel drops the event rather than
// stalling the caller, per spec.md §9's "replace with a broadcast
// channel ... never blocks producers (lossy on slow subscribers)".
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}
	select {
	case b.publish <- e:
	default:
	}
}

// Subscribe registers a new Subscription. filter may be nil to receive
// every event.
func (b *Bus) Subscribe(filter Filter) *Subscription {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	sub := &subscriber{id: id, ch: ch, filter: filter}
	select {
	case b.register <- sub:
	case <-b.done:
		close(ch)
	}
	return &Subscription{C: ch, bus: b, id: id}
}

// Close stops the bus and closes every subscriber channel still open.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	close(b.done)
}
