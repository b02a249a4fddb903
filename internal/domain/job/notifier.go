package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/private-judge/judge-api/internal/domain/model"
)

// ErrWaiterRequired indicates a notifier cannot be constructed without a waiter.
var ErrWaiterRequired = errors.New("notifier waiter is required")

// Waiter blocks until a job of the given type may have become available.
type Waiter interface {
	WaitForNotification(ctx context.Context, jobType model.JobType) error
}

// Notifier fans job availability signals out to long-polling workers.
type Notifier interface {
	// Subscribe returns a channel that receives a signal whenever a job of any of the
	// given types may be claimable, and a function that cancels the subscription.
	Subscribe(jobTypes ...model.JobType) (func(), <-chan struct{})
	StopAll()
}

// NotifierOptions configure the behaviour of the default notifier implementation.
type NotifierOptions struct {
	Waiter     Waiter
	WaitWindow time.Duration
	Backoff    time.Duration
}

// DefaultNotifier runs one listener goroutine per subscribed job type and stops it when
// the last subscriber of that type leaves.
type DefaultNotifier struct {
	waiter     Waiter
	waitWindow time.Duration
	backoff    time.Duration

	mu        sync.Mutex
	subs      map[model.JobType]map[chan struct{}]struct{}
	listeners map[model.JobType]context.CancelFunc
}

// NewNotifier constructs the default notifier implementation.
func NewNotifier(opts NotifierOptions) (*DefaultNotifier, error) {
	if opts.Waiter == nil {
		return nil, ErrWaiterRequired
	}
	waitWindow := opts.WaitWindow
	if waitWindow <= 0 {
		waitWindow = time.Minute
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	return &DefaultNotifier{
		waiter:     opts.Waiter,
		waitWindow: waitWindow,
		backoff:    backoff,
		subs:       make(map[model.JobType]map[chan struct{}]struct{}),
		listeners:  make(map[model.JobType]context.CancelFunc),
	}, nil
}

func (n *DefaultNotifier) Subscribe(jobTypes ...model.JobType) (func(), <-chan struct{}) {
	if len(jobTypes) == 0 {
		jobTypes = model.AllJobTypes
	}
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	for _, jt := range jobTypes {
		if _, ok := n.listeners[jt]; !ok {
			ctx, cancel := context.WithCancel(context.Background())
			n.listeners[jt] = cancel
			go n.listenLoop(ctx, jt)
		}
		if n.subs[jt] == nil {
			n.subs[jt] = make(map[chan struct{}]struct{})
		}
		n.subs[jt][ch] = struct{}{}
	}
	n.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			removed := false
			for _, jt := range jobTypes {
				subscribers := n.subs[jt]
				if _, ok := subscribers[ch]; !ok {
					continue
				}
				removed = true
				delete(subscribers, ch)
				if len(subscribers) == 0 {
					n.stopListener(jt)
					delete(n.subs, jt)
				}
			}
			if removed {
				drainAndClose(ch)
			}
		})
	}
	return unsub, ch
}

func (n *DefaultNotifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for jt, cancel := range n.listeners {
		cancel()
		delete(n.listeners, jt)
	}
	closed := make(map[chan struct{}]struct{})
	for jt, subscribers := range n.subs {
		for ch := range subscribers {
			if _, done := closed[ch]; !done {
				drainAndClose(ch)
				closed[ch] = struct{}{}
			}
		}
		delete(n.subs, jt)
	}
}

func (n *DefaultNotifier) stopListener(jobType model.JobType) {
	if cancel, ok := n.listeners[jobType]; ok {
		cancel()
		delete(n.listeners, jobType)
	}
}

func (n *DefaultNotifier) listenLoop(ctx context.Context, jobType model.JobType) {
	for ctx.Err() == nil {
		waitCtx, cancel := context.WithTimeout(ctx, n.waitWindow)
		err := n.waiter.WaitForNotification(waitCtx, jobType)
		cancel()

		n.broadcast(jobType)

		if err != nil && ctx.Err() == nil {
			timer := time.NewTimer(n.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

func (n *DefaultNotifier) broadcast(jobType model.JobType) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for ch := range n.subs[jobType] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// drainAndClose removes any buffered notifications before closing the channel so
// receivers observe a closed channel immediately.
func drainAndClose(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}

var _ Notifier = (*DefaultNotifier)(nil)
