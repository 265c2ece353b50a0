// Package skinrestorer repairs skins whose signature doesn't pass the
// vendor's trusted key check. Third-party skin urls are sent to an external
// re-signing service once, cached per remote identity and substituted into
// the verification response on later logins
package skinrestorer

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"

	"ely.by/multilogin/internal/db"
	"ely.by/multilogin/internal/mineskin"
	"ely.by/multilogin/internal/otel"
	"ely.by/multilogin/internal/yggdrasil"
)

type RestorerStore interface {
	FindRestorerEntry(ctx context.Context, onlineUuid string) (*db.RestorerEntry, error)
	UpsertRestorerEntry(ctx context.Context, entry *db.RestorerEntry) error
}

type SkinGenerator interface {
	GenerateFromUrl(ctx context.Context, generateReq mineskin.GenerateRequest) (*mineskin.SkinData, error)
}

type Emitter interface {
	Emit(name string, args ...any)
}

type Params struct {
	// TrustedSkinHostSuffix marks the platform's own skin origin, which
	// never needs re-signing
	TrustedSkinHostSuffix string
	// PoolSize bounds the number of simultaneously running restoration jobs
	PoolSize int
	// Timeout applies to each call to the re-signing service
	Timeout time.Duration
}

func New(store RestorerStore, generator SkinGenerator, emitter Emitter, params Params) (*Restorer, error) {
	if params.TrustedSkinHostSuffix == "" {
		params.TrustedSkinHostSuffix = ".minecraft.net"
	}

	if params.PoolSize <= 0 {
		params.PoolSize = 2
	}

	if params.Timeout <= 0 {
		params.Timeout = 15 * time.Second
	}

	metrics, err := newRestorerMetrics(otel.GetMeter())
	if err != nil {
		return nil, err
	}

	return &Restorer{
		store:     store,
		generator: generator,
		emitter:   emitter,
		params:    params,
		inflight:  newInflightRegistry(),
		pool:      make(chan struct{}, params.PoolSize),
		cache: ttlcache.New[string, *db.RestorerEntry](
			ttlcache.WithDisableTouchOnHit[string, *db.RestorerEntry](),
		),
		metrics: metrics,
	}, nil
}

type Restorer struct {
	store     RestorerStore
	generator SkinGenerator
	emitter   Emitter
	params    Params
	inflight  *inflightRegistry
	pool      chan struct{}
	cache     *ttlcache.Cache[string, *db.RestorerEntry]
	metrics   *restorerMetrics

	jobs        sync.WaitGroup
	gcStartOnce sync.Once
}

// DoRestore applies the cached re-signed textures onto the response when
// possible, or schedules an asynchronous restoration job. It never blocks
// the login path beyond a cache lookup and never fails the login: every
// problem is a debug-logged skip. The caller owns the passed response and
// must pass an independent copy when the original is still shared with
// other consumers
func (r *Restorer) DoRestore(ctx context.Context, response *yggdrasil.VerificationResponse) {
	logger := slog.With(slog.String("username", response.Name))

	textures := response.TexturesProperty()
	if textures == nil {
		logger.DebugContext(ctx, "No skin data, skip")
		r.metrics.Skipped.Add(ctx, 1)
		return
	}

	skin, skipReason := decodeSkin(textures.Value)
	if skipReason != "" {
		logger.DebugContext(ctx, "Unrestorable skin data, skip", slog.String("reason", skipReason))
		r.metrics.Skipped.Add(ctx, 1)
		return
	}

	if strings.HasSuffix(skin.Url.Host, r.params.TrustedSkinHostSuffix) {
		logger.DebugContext(ctx, "Official skin source, skip")
		r.metrics.Skipped.Add(ctx, 1)
		return
	}

	entry := r.cachedEntry(ctx, response.Id)
	if entry != nil && entry.SkinUrl == skin.Url.String() {
		var data mineskin.SkinData
		err := json.Unmarshal([]byte(entry.RestorerData), &data)
		if err != nil {
			logger.DebugContext(ctx, "Corrupted restorer cache entry, skip", slog.Any("error", err))
			r.metrics.Skipped.Add(ctx, 1)
			return
		}

		textures.Value = data.Value
		textures.Signature = data.Signature
		logger.DebugContext(ctx, "Applied cached restored skin")
		r.metrics.CacheHits.Add(ctx, 1)
		return
	}

	if !r.inflight.TryBegin(response.Id) {
		// The next login will re-check the cache and retry, so a second
		// concurrent request is dropped rather than queued
		logger.DebugContext(ctx, "Duplicate is being restored, skip")
		r.metrics.Dropped.Add(ctx, 1)
		return
	}

	r.metrics.Scheduled.Add(ctx, 1)
	r.emitter.Emit("restorer:scheduled", response.Id, response.Name)

	r.jobs.Add(1)
	go r.restoreJob(response.Id, response.Name, skin)
}

// Wait blocks until all scheduled jobs finish. Used during shutdown
func (r *Restorer) Wait() {
	r.jobs.Wait()
}

func (r *Restorer) Stop() {
	// Calling Stop() on a non-started GC hangs trying to close the
	// uninitialized channel, so make sure it was started
	r.startGcOnce()
	r.cache.Stop()
	r.Wait()
}

func (r *Restorer) restoreJob(onlineUuid string, username string, skin *decodedSkin) {
	defer r.jobs.Done()
	defer r.inflight.End(onlineUuid)

	r.pool <- struct{}{}
	defer func() {
		<-r.pool
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.params.Timeout)
	defer cancel()

	logger := slog.With(slog.String("username", username))

	variant := skin.Model
	if variant == "" {
		variant = "classic"
	}

	result, err := r.generator.GenerateFromUrl(ctx, mineskin.GenerateRequest{
		Name:       uuid.New().String()[:6],
		Variant:    variant,
		Visibility: mineskin.VisibilityPrivate,
		Url:        skin.Url.String(),
	})
	if err != nil {
		// Best effort enhancement: the previous cache state stays valid
		// and the next login will retry
		logger.DebugContext(ctx, "Unable to restore the skin", slog.Any("error", err))
		r.metrics.Failed.Add(ctx, 1)
		r.emitter.Emit("restorer:failed", onlineUuid, err)
		return
	}

	serializedData, _ := json.Marshal(result)
	entry := &db.RestorerEntry{
		OnlineUuid:   onlineUuid,
		SkinUrl:      skin.Url.String(),
		RestorerData: string(serializedData),
	}

	err = r.store.UpsertRestorerEntry(ctx, entry)
	if err != nil {
		logger.DebugContext(ctx, "Unable to persist the restored skin", slog.Any("error", err))
		r.metrics.Failed.Add(ctx, 1)
		r.emitter.Emit("restorer:failed", onlineUuid, err)
		return
	}

	r.cache.Set(onlineUuid, entry, time.Minute)
	r.metrics.Restored.Add(ctx, 1)
	r.emitter.Emit("restorer:restored", onlineUuid, username)
}

func (r *Restorer) cachedEntry(ctx context.Context, onlineUuid string) *db.RestorerEntry {
	item := r.cache.Get(onlineUuid)
	if item != nil {
		return item.Value()
	}

	entry, err := r.store.FindRestorerEntry(ctx, onlineUuid)
	if err != nil {
		// A store failure here only means a possibly redundant restoration
		slog.DebugContext(ctx, "Unable to read the restorer cache", slog.Any("error", err))
		return nil
	}

	if entry != nil {
		r.cache.Set(onlineUuid, entry, time.Minute)
		r.startGcOnce()
	}

	return entry
}

func (r *Restorer) startGcOnce() {
	r.gcStartOnce.Do(func() {
		go r.cache.Start()
	})
}

func newRestorerMetrics(meter metric.Meter) (*restorerMetrics, error) {
	m := &restorerMetrics{}
	var errors, err error

	m.Skipped, err = meter.Int64Counter("multilogin.restorer.skipped", metric.WithUnit("{login}"))
	errors = multierr.Append(errors, err)

	m.CacheHits, err = meter.Int64Counter("multilogin.restorer.cache_hit", metric.WithUnit("{login}"))
	errors = multierr.Append(errors, err)

	m.Scheduled, err = meter.Int64Counter("multilogin.restorer.scheduled", metric.WithUnit("{job}"))
	errors = multierr.Append(errors, err)

	m.Dropped, err = meter.Int64Counter("multilogin.restorer.dropped", metric.WithUnit("{job}"))
	errors = multierr.Append(errors, err)

	m.Restored, err = meter.Int64Counter("multilogin.restorer.restored", metric.WithUnit("{job}"))
	errors = multierr.Append(errors, err)

	m.Failed, err = meter.Int64Counter("multilogin.restorer.failed", metric.WithUnit("{job}"))
	errors = multierr.Append(errors, err)

	return m, errors
}

type restorerMetrics struct {
	Skipped   metric.Int64Counter
	CacheHits metric.Int64Counter
	Scheduled metric.Int64Counter
	Dropped   metric.Int64Counter
	Restored  metric.Int64Counter
	Failed    metric.Int64Counter
}
