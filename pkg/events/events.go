// Package events is a synchronous bus for lifecycle notifications around deploy and retrieve.
package events

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	errUtils "github.com/yuya-takeyama/srcsync/errors"
	"github.com/yuya-takeyama/srcsync/pkg/element"
	"github.com/yuya-takeyama/srcsync/pkg/logger"
)

type Topic string

const (
	PreDeploy        Topic = "pre.deploy"
	PostDeploy       Topic = "post.deploy"
	PreRetrieve      Topic = "pre.retrieve"
	PostRetrieve     Topic = "post.retrieve"
	PostSourceUpdate Topic = "post.source.update"
)

// Pre reports whether handlers of the topic may abort the operation.
func (t Topic) Pre() bool {
	return t == PreDeploy || t == PreRetrieve
}

// Event carries the files an operation is about to send, or has just received or written.
type Event struct {
	Topic   Topic
	Package string
	JobID   string
	Entries []element.WorkspaceElement
}

type Handler func(ctx context.Context, e Event) error

type subscription struct {
	id      int
	handler Handler
}

// Bus delivers events to handlers in subscription order. A nil *Bus drops every event.
type Bus struct {
	mu       sync.Mutex
	nextID   int
	handlers map[Topic][]subscription
	logger   *log.Logger
}

func NewBus(l *log.Logger) *Bus {
	return &Bus{
		handlers: make(map[Topic][]subscription),
		logger:   logger.OrNull(l),
	}
}

// Subscribe registers h for topic and returns a function that removes it.
func (b *Bus) Subscribe(topic Topic, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers[topic] = append(b.handlers[topic], subscription{id: id, handler: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.handlers[topic]
		for i, s := range subs {
			if s.id == id {
				b.handlers[topic] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish runs the handlers of e.Topic. The first failing handler of a pre topic stops
// delivery and its error is returned. Failures of post handlers are logged and skipped.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	subs := append([]subscription(nil), b.handlers[e.Topic]...)
	b.mu.Unlock()

	for _, s := range subs {
		err := s.handler(ctx, e)
		if err == nil {
			continue
		}
		if e.Topic.Pre() {
			return errUtils.Build(errUtils.ErrHookAborted).
				WithCause(err).
				WithContext("topic", e.Topic).
				Err()
		}
		b.logger.Warn("event handler failed", "topic", e.Topic, "package", e.Package, "err", err)
	}
	return nil
}
