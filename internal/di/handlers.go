package di

import (
	"net/http"
	"slices"
	"strings"

	"github.com/defval/di"
	"github.com/etherlabsio/healthcheck/v2"
	"github.com/gorilla/mux"
	"github.com/spf13/viper"

	. "ely.by/multilogin/internal/http"
	"ely.by/multilogin/internal/security"
	"ely.by/multilogin/internal/services"
	"ely.by/multilogin/internal/whitelist"
)

var handlersDiOptions = di.Options(
	di.Provide(newHandlerFactory, di.As(new(http.Handler))),
	di.Provide(newSessionsHandler, di.WithName("sessions")),
	di.Provide(newApiHandler, di.WithName("api")),
)

func newHandlerFactory(
	container *di.Container,
	config *viper.Viper,
) (*mux.Router, error) {
	config.SetDefault("modules", []string{"sessions", "api"})
	enabledModules := config.GetStringSlice("modules")

	// gorilla.mux has no native way to combine multiple routers.
	// The hack used later in the code works for prefixes in addresses, but leads to misbehavior
	// if you set an empty prefix. Since the sessions surface should be mounted at the root prefix,
	// we use it as the base router
	var router *mux.Router
	if slices.Contains(enabledModules, "sessions") {
		if err := container.Resolve(&router, di.Name("sessions")); err != nil {
			return nil, err
		}
	} else {
		router = mux.NewRouter()
	}

	router.StrictSlash(true)
	router.NotFoundHandler = http.HandlerFunc(NotFoundHandler)

	if slices.Contains(enabledModules, "api") {
		var apiRouter *mux.Router
		if err := container.Resolve(&apiRouter, di.Name("api")); err != nil {
			return nil, err
		}

		var authenticator Authenticator
		if err := container.Resolve(&authenticator); err != nil {
			return nil, err
		}

		isWhitelistRoute := func(req *http.Request) bool {
			return strings.HasPrefix(req.URL.Path, "/whitelist")
		}
		apiRouter.Use(NewConditionalMiddleware(isWhitelistRoute,
			NewAuthenticationMiddleware(authenticator, security.WhitelistScope),
		))
		apiRouter.Use(NewConditionalMiddleware(func(req *http.Request) bool {
			return !isWhitelistRoute(req)
		}, NewAuthenticationMiddleware(authenticator, security.IdentitiesScope)))

		mount(router, "/api", apiRouter)
	}

	// Resolve health checkers last, because all the services required by the application
	// must first be initialized and each of them can publish its own checkers
	var healthCheckers []*namedHealthChecker
	if has, _ := container.Has(&healthCheckers); has {
		if err := container.Resolve(&healthCheckers); err != nil {
			return nil, err
		}

		checkersOptions := make([]healthcheck.Option, len(healthCheckers))
		for i, checker := range healthCheckers {
			checkersOptions[i] = healthcheck.WithChecker(checker.Name, checker.Checker)
		}

		router.Handle("/healthcheck", healthcheck.Handler(checkersOptions...)).Methods("GET")
	}

	return router, nil
}

func newSessionsHandler(processor LoginProcessor) (*mux.Router, error) {
	sessions, err := NewSessions(processor)
	if err != nil {
		return nil, err
	}

	return sessions.Handler(), nil
}

func newApiHandler(
	identities IdentitiesManager,
	registry *services.Registry,
	w *whitelist.Whitelist,
	reloader Reloader,
) (*mux.Router, error) {
	api, err := NewApi(identities, registry, w, reloader)
	if err != nil {
		return nil, err
	}

	return api.Handler(), nil
}

func mount(router *mux.Router, path string, handler http.Handler) {
	router.PathPrefix(path).Handler(
		http.StripPrefix(
			strings.TrimSuffix(path, "/"),
			handler,
		),
	)
}

type namedHealthChecker struct {
	Name    string
	Checker healthcheck.Checker
}
