package di

import (
	"log/slog"

	"github.com/defval/di"

	d "ely.by/multilogin/internal/dispatcher"
	"ely.by/multilogin/internal/eventsubscribers"
	"ely.by/multilogin/internal/identity"
	"ely.by/multilogin/internal/skinrestorer"
)

var dispatcherDiOptions = di.Options(
	di.Provide(newDispatcher,
		di.As(new(d.Emitter)),
		di.As(new(d.Subscriber)),
		di.As(new(identity.Emitter)),
		di.As(new(skinrestorer.Emitter)),
	),
	di.Invoke(enableEventsHandlers),
)

func newDispatcher() d.Dispatcher {
	return d.New()
}

func enableEventsHandlers(dispatcher d.Subscriber) {
	(&eventsubscribers.Logger{Logger: slog.Default()}).ConfigureWithDispatcher(dispatcher)
}
