package di

import (
	"net/http"

	"github.com/defval/di"

	multiloginHttp "ely.by/multilogin/internal/http"
	"ely.by/multilogin/internal/services"
	"ely.by/multilogin/internal/session"
	"ely.by/multilogin/internal/whitelist"
	"ely.by/multilogin/internal/yggdrasil"
)

var sessionDiOptions = di.Options(
	di.Provide(newSessionClient, di.As(new(session.SessionChecker))),
	di.Provide(newLoginProcessor, di.As(new(multiloginHttp.LoginProcessor))),
)

func newSessionClient(httpClient *http.Client) *yggdrasil.SessionClient {
	return yggdrasil.NewSessionClient(httpClient)
}

func newLoginProcessor(
	registry *services.Registry,
	checker session.SessionChecker,
	resolver session.IdentityResolver,
	restorer session.SkinRestorer,
	w *whitelist.Whitelist,
) (*session.Processor, error) {
	return session.NewProcessor(registry, checker, resolver, restorer, w)
}
