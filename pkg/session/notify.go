package session

import "sync"

// Variant is the notification style.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notification is a short, transient, user-facing message.
type Notification struct {
	Title       string
	Description string
	Variant     Variant
}

// IsError reports whether the notification reports a failure.
func (n Notification) IsError() bool {
	return n.Variant == VariantDestructive
}

type notifier struct {
	mu   sync.Mutex
	subs map[int]chan Notification
	next int
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[int]chan Notification)}
}

func (n *notifier) subscribe(buffer int) (<-chan Notification, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Notification, buffer)

	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = ch
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
			close(ch)
		})
	}
}

func (n *notifier) publish(note Notification) {
	if note.Variant == "" {
		note.Variant = VariantDefault
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- note:
		default:
		}
	}
}
