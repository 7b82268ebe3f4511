package runtime

import (
	"fmt"
	"sync"

	"github.com/yungbote/deepmed-backend/internal/jobs/queue"
)

// Handler executes jobs of one queue. Handlers must be idempotent: a job can run more than once.
type Handler interface {
	Queue() queue.Name
	Handle(ctx *Context) queue.Result
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[queue.Name]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[queue.Name]Handler)}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	q := h.Queue()
	if _, err := queue.ParseName(string(q)); err != nil {
		return fmt.Errorf("register handler: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[q]; exists {
		return fmt.Errorf("handler already registered for queue=%s", q)
	}
	r.handlers[q] = h
	return nil
}

func (r *Registry) Get(q queue.Name) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[q]
	return h, ok
}

// HandlerFunc adapts a function to Handler for a fixed queue.
type HandlerFunc struct {
	Name queue.Name
	Fn   func(ctx *Context) queue.Result
}

func (h HandlerFunc) Queue() queue.Name                { return h.Name }
func (h HandlerFunc) Handle(ctx *Context) queue.Result { return h.Fn(ctx) }
