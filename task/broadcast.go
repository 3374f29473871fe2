package task

import "sync"

// Reasons carried by a Signal. Consumers are expected to re-query List/Get.
const (
    ReasonEnqueued  = "enqueued"
    ReasonStarted   = "started"
    ReasonProgress  = "progress"
    ReasonCompleted = "completed"
    ReasonFailed    = "failed"
    ReasonCanceled  = "canceled"
    ReasonRetried   = "retried"
    ReasonRemoved   = "removed"
    ReasonCleared   = "cleared"
    ReasonRecovered = "recovered"
)

// Signal says that something about a task changed. TaskID is zero for bulk changes.
type Signal struct {
    TaskID int64  `json:"taskId,omitempty"`
    Reason string `json:"reason"`
}

// Broadcaster fans signals out to subscribers without ever blocking the sender.
// A subscriber that falls behind misses signals.
type Broadcaster struct {
    mu     sync.Mutex
    subs   map[int]chan Signal
    nextID int
}

func NewBroadcaster() *Broadcaster {
    return &Broadcaster{subs: make(map[int]chan Signal)}
}

// Subscribe returns a signal channel and a function that closes it.
func (b *Broadcaster) Subscribe() (<-chan Signal, func()) {
    b.mu.Lock()
    defer b.mu.Unlock()

    id := b.nextID
    b.nextID++
    ch := make(chan Signal, 16)
    b.subs[id] = ch

    var once sync.Once
    return ch, func() {
        once.Do(func() {
            b.mu.Lock()
            defer b.mu.Unlock()
            delete(b.subs, id)
            close(ch)
        })
    }
}

func (b *Broadcaster) Publish(s Signal) {
    b.mu.Lock()
    defer b.mu.Unlock()
    for _, ch := range b.subs {
        select {
        case ch <- s:
        default:
        }
    }
}
