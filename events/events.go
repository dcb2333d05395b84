package events

import (
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

// EventHandler defines a function type where its input type is the generic type. A handler returning an error stops
// the publication of the event to any remaining handlers.
type EventHandler[T any] func(T) error

// globalEventHandlers maps event types to the EventHandler callbacks invoked any time any EventEmitter publishes an
// event of that type.
var globalEventHandlers = make(map[reflect.Type][]any)

// globalEventHandlersLock guards globalEventHandlers.
var globalEventHandlersLock sync.RWMutex

// SubscribeAny adds an EventHandler invoked for every published event of the handler's event type, regardless of the
// EventEmitter publishing it.
// Note: An EventHandler subscribed here remains for the lifetime of the program.
func SubscribeAny[T any](callback EventHandler[T]) {
	eventType := reflect.TypeOf((*T)(nil)).Elem()

	globalEventHandlersLock.Lock()
	defer globalEventHandlersLock.Unlock()
	globalEventHandlers[eventType] = append(globalEventHandlers[eventType], callback)
}

// EventEmitter publishes events of a single type to its subscribed EventHandler callbacks, and then to any global
// callbacks for that type. The zero value is ready to use.
type EventEmitter[T any] struct {
	// subscriptions defines the EventHandler methods which should be invoked when a new event is published to this
	// emitter.
	subscriptions []EventHandler[T]
	lock          sync.RWMutex
}

// Subscribe adds an EventHandler to the list of subscribed EventHandler objects for this emitter. When an event is
// published, the callback will be triggered with the event data.
func (e *EventEmitter[T]) Subscribe(callback EventHandler[T]) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.subscriptions = append(e.subscriptions, callback)
}

// Publish emits the provided event by calling every subscribed EventHandler, followed by every global handler for the
// event type. The first error returned by a handler is returned.
func (e *EventEmitter[T]) Publish(event T) error {
	e.lock.RLock()
	subscriptions := e.subscriptions
	e.lock.RUnlock()

	for _, subscription := range subscriptions {
		if err := subscription(event); err != nil {
			return err
		}
	}

	globalEventHandlersLock.RLock()
	callbacks := globalEventHandlers[reflect.TypeOf((*T)(nil)).Elem()]
	globalEventHandlersLock.RUnlock()

	for _, callback := range callbacks {
		handler, ok := callback.(EventHandler[T])
		if !ok {
			return errors.Errorf("global event handler has unexpected type %T", callback)
		}
		if err := handler(event); err != nil {
			return err
		}
	}
	return nil
}
