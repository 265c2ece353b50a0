package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"

	"ely.by/multilogin/internal/otel"
	"ely.by/multilogin/internal/session"
)

type LoginProcessor interface {
	Login(ctx context.Context, username, serverId, ip string) (*session.Profile, error)
}

func NewSessions(processor LoginProcessor) (*Sessions, error) {
	metrics, err := newSessionsMetrics(otel.GetMeter())
	if err != nil {
		return nil, err
	}

	return &Sessions{
		processor: processor,
		metrics:   metrics,
	}, nil
}

// Sessions exposes the engine surface in the Yggdrasil hasJoined shape,
// so any proxy that already speaks the session protocol can be pointed
// at it without modifications
type Sessions struct {
	processor LoginProcessor
	metrics   *sessionsMetrics
}

func (s *Sessions) Handler() *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/session/minecraft/hasJoined", s.hasJoinedHandler).Methods(http.MethodGet)

	return router
}

type profileProperty struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Signature string `json:"signature,omitempty"`
}

type profileResponse struct {
	Id         string             `json:"id"`
	Name       string             `json:"name"`
	Properties []*profileProperty `json:"properties"`
}

func (s *Sessions) hasJoinedHandler(resp http.ResponseWriter, req *http.Request) {
	s.metrics.Request.Add(req.Context(), 1)

	query := req.URL.Query()
	username := query.Get("username")
	serverId := query.Get("serverId")
	if username == "" || serverId == "" {
		apiBadRequest(resp, map[string][]string{
			"query": {"Both username and serverId query parameters are required"},
		})
		return
	}

	profile, err := s.processor.Login(req.Context(), username, serverId, query.Get("ip"))
	if err != nil {
		if errors.Is(err, session.NotWhitelistedError) {
			apiForbidden(resp, err.Error())
			return
		}

		apiServerError(resp, req, fmt.Errorf("unable to process the login: %w", err))
		return
	}

	if profile == nil {
		resp.WriteHeader(http.StatusNoContent)
		return
	}

	result := &profileResponse{
		Id:         profile.LocalUuid,
		Name:       profile.Username,
		Properties: make([]*profileProperty, 0, len(profile.Properties)),
	}
	for _, property := range profile.Properties {
		result.Properties = append(result.Properties, &profileProperty{
			Name:      property.Name,
			Value:     property.Value,
			Signature: property.Signature,
		})
	}

	apiJson(resp, http.StatusOK, result)
}

func newSessionsMetrics(meter metric.Meter) (*sessionsMetrics, error) {
	m := &sessionsMetrics{}
	var errors, err error

	m.Request, err = meter.Int64Counter("multilogin.app.sessions.has_joined.request", metric.WithUnit("{request}"))
	errors = multierr.Append(errors, err)

	return m, errors
}

type sessionsMetrics struct {
	Request metric.Int64Counter
}
