package dispatcher

import "github.com/asaskevich/EventBus"

type Subscriber interface {
	Subscribe(topic string, fn any)
}

type Emitter interface {
	Emit(topic string, args ...any)
}

type Dispatcher interface {
	Subscriber
	Emitter
}

type localEventDispatcher struct {
	bus EventBus.Bus
}

func (d *localEventDispatcher) Subscribe(topic string, fn any) {
	_ = d.bus.Subscribe(topic, fn)
}

func (d *localEventDispatcher) Emit(topic string, args ...any) {
	d.bus.Publish(topic, args...)
}

func New() Dispatcher {
	return &localEventDispatcher{
		bus: EventBus.New(),
	}
}
