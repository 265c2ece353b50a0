package di

import (
	"github.com/defval/di"

	"ely.by/multilogin/internal/http"
	"ely.by/multilogin/internal/identity"
	"ely.by/multilogin/internal/services"
	"ely.by/multilogin/internal/session"
)

var identityDiOptions = di.Options(
	di.Provide(newIdentityManager,
		di.As(new(http.IdentitiesManager)),
		di.As(new(session.IdentityResolver)),
	),
)

func newIdentityManager(
	store identity.IdentitiesStore,
	registry *services.Registry,
	emitter identity.Emitter,
) (*identity.Manager, error) {
	return identity.NewManager(store, registry, emitter)
}
