package game

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"zsphere/internal/fhe"
)

const (
	EventTypeGameStarted = "game_started"
	EventTypeRoundPlayed = "round_played"
)

type GameStarted struct {
	Player common.Address
	Score  fhe.Handle
}

type RoundPlayed struct {
	Player       common.Address
	NewScore     fhe.Handle
	BigBall      fhe.Handle
	SmallBall    fhe.Handle
	Outcome      fhe.Handle
	RoundsPlayed uint32
}

// Notifier observes committed transitions. Calls may arrive concurrently
// for different players.
type Notifier interface {
	GameStarted(GameStarted)
	RoundPlayed(RoundPlayed)
}

// Bus fans notifications out to subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs []Notifier
}

func (b *Bus) Subscribe(n Notifier) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, n)
}

func (b *Bus) GameStarted(ev GameStarted) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		s.GameStarted(ev)
	}
}

func (b *Bus) RoundPlayed(ev RoundPlayed) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		s.RoundPlayed(ev)
	}
}

// Deferred queues notifications until the transitions behind them are
// durable. Flush delivers the queue in arrival order; Drop forgets it.
type Deferred struct {
	next Notifier

	mu     sync.Mutex
	queued []func(Notifier)
}

func NewDeferred(next Notifier) *Deferred {
	return &Deferred{next: next}
}

func (d *Deferred) GameStarted(ev GameStarted) {
	d.push(func(n Notifier) { n.GameStarted(ev) })
}

func (d *Deferred) RoundPlayed(ev RoundPlayed) {
	d.push(func(n Notifier) { n.RoundPlayed(ev) })
}

func (d *Deferred) push(f func(Notifier)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queued = append(d.queued, f)
}

func (d *Deferred) Flush() {
	d.mu.Lock()
	q := d.queued
	d.queued = nil
	d.mu.Unlock()
	for _, f := range q {
		f(d.next)
	}
}

func (d *Deferred) Drop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queued = nil
}
