// Package session drives a single login attempt: multi-service
// verification, the whitelist gate, identity resolution and the deferred
// skin restoration
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"

	"ely.by/multilogin/internal/db"
	"ely.by/multilogin/internal/otel"
	"ely.by/multilogin/internal/services"
	"ely.by/multilogin/internal/yggdrasil"
)

type SessionChecker interface {
	HasJoined(ctx context.Context, sessionUrl, username, serverId, ip string) (*yggdrasil.VerificationResponse, error)
}

type IdentityResolver interface {
	ResolveOrCreate(ctx context.Context, serviceId int, remoteId string, username string) (*db.User, error)
}

type SkinRestorer interface {
	DoRestore(ctx context.Context, response *yggdrasil.VerificationResponse)
}

type WhitelistChecker interface {
	Enabled() bool
	Contains(name string) bool
}

var NotWhitelistedError = errors.New("the player is not whitelisted")

// Profile is what the protocol layer needs to complete the session: the
// durable local uuid and the verified (possibly restored) property set
type Profile struct {
	LocalUuid  string
	ServiceId  int
	Username   string
	Properties map[string]*yggdrasil.Property
}

func NewProcessor(
	registry *services.Registry,
	checker SessionChecker,
	resolver IdentityResolver,
	restorer SkinRestorer,
	whitelist WhitelistChecker,
) (*Processor, error) {
	metrics, err := newProcessorMetrics(otel.GetMeter())
	if err != nil {
		return nil, err
	}

	return &Processor{
		registry:  registry,
		checker:   checker,
		resolver:  resolver,
		restorer:  restorer,
		whitelist: whitelist,
		metrics:   metrics,
	}, nil
}

type Processor struct {
	registry  *services.Registry
	checker   SessionChecker
	resolver  IdentityResolver
	restorer  SkinRestorer
	whitelist WhitelistChecker
	metrics   *processorMetrics
}

// Login asks every configured service whether the player has joined. All
// services are queried in parallel, but the winner is picked by the
// configuration order, so a player known to several services always
// resolves to the same one. Returns nil, nil when no service verified the
// player
func (p *Processor) Login(ctx context.Context, username, serverId, ip string) (*Profile, error) {
	configured := p.registry.All()
	if len(configured) == 0 {
		return nil, errors.New("no verification services are configured")
	}

	responses := make([]*yggdrasil.VerificationResponse, len(configured))
	var wg sync.WaitGroup
	for i, service := range configured {
		wg.Add(1)
		go func(i int, service *services.Service) {
			defer wg.Done()

			response, err := p.checker.HasJoined(ctx, service.SessionUrl, username, serverId, ip)
			if err != nil {
				// A failing service must not take the others down with it
				slog.DebugContext(ctx, "Verification service request failed",
					slog.String("service", service.Name),
					slog.Any("error", err),
				)
				return
			}

			responses[i] = response
		}(i, service)
	}
	wg.Wait()

	var winner *yggdrasil.VerificationResponse
	var winnerService *services.Service
	for i, response := range responses {
		if response != nil {
			winner = response
			winnerService = configured[i]
			break
		}
	}

	if winner == nil {
		p.metrics.Unverified.Add(ctx, 1)
		return nil, nil
	}

	if p.whitelist.Enabled() && !p.whitelist.Contains(winner.Name) {
		p.metrics.Rejected.Add(ctx, 1)
		return nil, NotWhitelistedError
	}

	user, err := p.resolver.ResolveOrCreate(ctx, winnerService.Id, winner.Id, winner.Name)
	if err != nil {
		return nil, err
	}

	p.restorer.DoRestore(ctx, winner)

	p.metrics.Verified.Add(ctx, 1)

	return &Profile{
		LocalUuid:  user.LocalUuid,
		ServiceId:  winnerService.Id,
		Username:   user.Username,
		Properties: winner.Properties,
	}, nil
}

func newProcessorMetrics(meter metric.Meter) (*processorMetrics, error) {
	m := &processorMetrics{}
	var errors, err error

	m.Verified, err = meter.Int64Counter("multilogin.session.verified", metric.WithUnit("{login}"))
	errors = multierr.Append(errors, err)

	m.Unverified, err = meter.Int64Counter("multilogin.session.unverified", metric.WithUnit("{login}"))
	errors = multierr.Append(errors, err)

	m.Rejected, err = meter.Int64Counter("multilogin.session.rejected", metric.WithUnit("{login}"))
	errors = multierr.Append(errors, err)

	return m, errors
}

type processorMetrics struct {
	Verified   metric.Int64Counter
	Unverified metric.Int64Counter
	Rejected   metric.Int64Counter
}
