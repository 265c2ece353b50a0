package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/huandu/xstrings"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"

	"ely.by/multilogin/internal/db"
	"ely.by/multilogin/internal/identity"
	"ely.by/multilogin/internal/otel"
	"ely.by/multilogin/internal/services"
	"ely.by/multilogin/internal/whitelist"
)

type IdentitiesManager interface {
	QueryByUsername(ctx context.Context, username string) ([]*db.User, error)
	QueryByLocalUuid(ctx context.Context, localUuid string) (*db.User, error)
	EraseUsername(ctx context.Context, username string) (int64, error)
	MergeIdentities(ctx context.Context, sourceLocalUuid, targetLocalUuid string) error
	GroupOnlineByService(ctx context.Context, onlineUsernames []string) (map[string][]string, error)
}

type Reloader interface {
	Reload(ctx context.Context) error
}

func NewApi(
	identities IdentitiesManager,
	registry *services.Registry,
	whitelist *whitelist.Whitelist,
	reloader Reloader,
) (*Api, error) {
	metrics, err := newApiMetrics(otel.GetMeter())
	if err != nil {
		return nil, err
	}

	return &Api{
		identities: identities,
		registry:   registry,
		whitelist:  whitelist,
		reloader:   reloader,
		metrics:    metrics,
	}, nil
}

type Api struct {
	identities IdentitiesManager
	registry   *services.Registry
	whitelist  *whitelist.Whitelist
	reloader   Reloader
	metrics    *apiMetrics
}

func (a *Api) Handler() *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/users", a.getUsersHandler).Methods(http.MethodGet)
	router.HandleFunc("/usernames/{username}", a.eraseUsernameHandler).Methods(http.MethodDelete)
	router.HandleFunc("/merge", a.mergeHandler).Methods(http.MethodPost)
	router.HandleFunc("/list", a.listHandler).Methods(http.MethodGet)
	router.HandleFunc("/whitelist", a.whitelistToggleHandler).Methods(http.MethodPost)
	router.HandleFunc("/whitelist/{username}", a.whitelistAddHandler).Methods(http.MethodPut)
	router.HandleFunc("/whitelist/{username}", a.whitelistRemoveHandler).Methods(http.MethodDelete)
	router.HandleFunc("/reload", a.reloadHandler).Methods(http.MethodPost)

	return router
}

type userResponse struct {
	LocalUuid string `json:"localUuid"`
	Service   string `json:"service"`
	RemoteId  string `json:"remoteId"`
	Username  string `json:"username"`
	Active    bool   `json:"active"`
}

func (a *Api) userResponse(user *db.User) *userResponse {
	return &userResponse{
		LocalUuid: user.LocalUuid,
		Service:   a.registry.NameById(user.ServiceId),
		RemoteId:  user.RemoteId,
		Username:  user.Username,
		Active:    user.Active,
	}
}

func (a *Api) getUsersHandler(resp http.ResponseWriter, req *http.Request) {
	a.metrics.QueryRequest.Add(req.Context(), 1)

	query := req.URL.Query()
	if uuid := query.Get("uuid"); uuid != "" {
		user, err := a.identities.QueryByLocalUuid(req.Context(), uuid)
		if err != nil {
			var v *identity.ValidationError
			if errors.As(err, &v) {
				apiBadRequest(resp, validationErrors(v))
				return
			}

			apiServerError(resp, req, fmt.Errorf("unable to query user by uuid: %w", err))
			return
		}

		if user == nil {
			NotFoundHandler(resp, req)
			return
		}

		apiJson(resp, http.StatusOK, a.userResponse(user))
		return
	}

	if username := query.Get("username"); username != "" {
		users, err := a.identities.QueryByUsername(req.Context(), username)
		if err != nil {
			apiServerError(resp, req, fmt.Errorf("unable to query users by username: %w", err))
			return
		}

		result := make([]*userResponse, len(users))
		for i, user := range users {
			result[i] = a.userResponse(user)
		}

		apiJson(resp, http.StatusOK, result)
		return
	}

	apiBadRequest(resp, map[string][]string{
		"query": {"Either uuid or username query parameter is required"},
	})
}

func (a *Api) eraseUsernameHandler(resp http.ResponseWriter, req *http.Request) {
	a.metrics.EraseRequest.Add(req.Context(), 1)

	username := mux.Vars(req)["username"]
	affected, err := a.identities.EraseUsername(req.Context(), username)
	if err != nil {
		apiServerError(resp, req, fmt.Errorf("unable to erase username: %w", err))
		return
	}

	if affected == 0 {
		NotFoundHandler(resp, req)
		return
	}

	resp.WriteHeader(http.StatusNoContent)
}

func (a *Api) mergeHandler(resp http.ResponseWriter, req *http.Request) {
	a.metrics.MergeRequest.Add(req.Context(), 1)

	err := req.ParseForm()
	if err != nil {
		apiBadRequest(resp, map[string][]string{
			"body": {"The body of the request must be a valid url-encoded string"},
		})
		return
	}

	err = a.identities.MergeIdentities(req.Context(), req.Form.Get("source"), req.Form.Get("target"))
	if err != nil {
		var v *identity.ValidationError
		if errors.As(err, &v) {
			apiBadRequest(resp, validationErrors(v))
			return
		}

		var conflict *identity.MergeConflictError
		if errors.As(err, &conflict) {
			apiJson(resp, http.StatusConflict, map[string]any{
				"error": conflict.Reason,
			})
			return
		}

		apiServerError(resp, req, fmt.Errorf("unable to merge identities: %w", err))
		return
	}

	resp.WriteHeader(http.StatusNoContent)
}

func (a *Api) listHandler(resp http.ResponseWriter, req *http.Request) {
	a.metrics.ListRequest.Add(req.Context(), 1)

	groups, err := a.identities.GroupOnlineByService(req.Context(), req.URL.Query()["online"])
	if err != nil {
		apiServerError(resp, req, fmt.Errorf("unable to group online players: %w", err))
		return
	}

	apiJson(resp, http.StatusOK, groups)
}

func (a *Api) whitelistToggleHandler(resp http.ResponseWriter, req *http.Request) {
	a.metrics.WhitelistRequest.Add(req.Context(), 1)

	err := req.ParseForm()
	if err != nil {
		apiBadRequest(resp, map[string][]string{
			"body": {"The body of the request must be a valid url-encoded string"},
		})
		return
	}

	enabled := req.Form.Get("enabled")
	if enabled != "true" && enabled != "false" {
		apiBadRequest(resp, map[string][]string{
			"enabled": {"Must be either true or false"},
		})
		return
	}

	err = a.whitelist.SetEnabled(enabled == "true")
	if err != nil {
		apiServerError(resp, req, fmt.Errorf("unable to persist the whitelist: %w", err))
		return
	}

	resp.WriteHeader(http.StatusNoContent)
}

func (a *Api) whitelistAddHandler(resp http.ResponseWriter, req *http.Request) {
	a.metrics.WhitelistRequest.Add(req.Context(), 1)

	added, err := a.whitelist.Add(mux.Vars(req)["username"])
	if err != nil {
		apiServerError(resp, req, fmt.Errorf("unable to persist the whitelist: %w", err))
		return
	}

	if added {
		resp.WriteHeader(http.StatusCreated)
	} else {
		resp.WriteHeader(http.StatusNoContent)
	}
}

func (a *Api) whitelistRemoveHandler(resp http.ResponseWriter, req *http.Request) {
	a.metrics.WhitelistRequest.Add(req.Context(), 1)

	removed, err := a.whitelist.Remove(mux.Vars(req)["username"])
	if err != nil {
		apiServerError(resp, req, fmt.Errorf("unable to persist the whitelist: %w", err))
		return
	}

	if !removed {
		NotFoundHandler(resp, req)
		return
	}

	resp.WriteHeader(http.StatusNoContent)
}

func (a *Api) reloadHandler(resp http.ResponseWriter, req *http.Request) {
	a.metrics.ReloadRequest.Add(req.Context(), 1)

	err := a.reloader.Reload(req.Context())
	if err != nil {
		apiServerError(resp, req, fmt.Errorf("unable to reload the configuration: %w", err))
		return
	}

	resp.WriteHeader(http.StatusNoContent)
}

// Field names in the manager's errors follow the API parameter names,
// lowercase the first rune just in case a wrapped struct field leaks through
func validationErrors(v *identity.ValidationError) map[string][]string {
	return map[string][]string{
		xstrings.FirstRuneToLower(v.Field): {fmt.Sprintf("Invalid value %q", v.Value)},
	}
}

func newApiMetrics(meter metric.Meter) (*apiMetrics, error) {
	m := &apiMetrics{}
	var errors, err error

	m.QueryRequest, err = meter.Int64Counter("multilogin.app.users.query.request", metric.WithUnit("{request}"))
	errors = multierr.Append(errors, err)

	m.EraseRequest, err = meter.Int64Counter("multilogin.app.usernames.erase.request", metric.WithUnit("{request}"))
	errors = multierr.Append(errors, err)

	m.MergeRequest, err = meter.Int64Counter("multilogin.app.identities.merge.request", metric.WithUnit("{request}"))
	errors = multierr.Append(errors, err)

	m.ListRequest, err = meter.Int64Counter("multilogin.app.list.request", metric.WithUnit("{request}"))
	errors = multierr.Append(errors, err)

	m.WhitelistRequest, err = meter.Int64Counter("multilogin.app.whitelist.request", metric.WithUnit("{request}"))
	errors = multierr.Append(errors, err)

	m.ReloadRequest, err = meter.Int64Counter("multilogin.app.reload.request", metric.WithUnit("{request}"))
	errors = multierr.Append(errors, err)

	return m, errors
}

type apiMetrics struct {
	QueryRequest     metric.Int64Counter
	EraseRequest     metric.Int64Counter
	MergeRequest     metric.Int64Counter
	ListRequest      metric.Int64Counter
	WhitelistRequest metric.Int64Counter
	ReloadRequest    metric.Int64Counter
}
