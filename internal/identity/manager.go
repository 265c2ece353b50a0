package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"

	"ely.by/multilogin/internal/db"
	"ely.by/multilogin/internal/otel"
	"ely.by/multilogin/internal/services"
	"ely.by/multilogin/internal/yggdrasil"
)

// IdentitiesStore is implemented by db.Store. Single-statement lookups run
// directly, everything that touches more than one row goes through
// Transactionally
type IdentitiesStore interface {
	FindUserByRemoteId(ctx context.Context, serviceId int, remoteId string) (*db.User, error)
	FindUserByLocalUuid(ctx context.Context, localUuid string) (*db.User, error)
	FindUsersByUsername(ctx context.Context, username string) ([]*db.User, error)
	FindOccupancy(ctx context.Context, username string) (*db.ProfileOccupancy, error)
	EraseUsername(ctx context.Context, username string) (int64, error)
	Transactionally(ctx context.Context, fn func(store *db.SQLStore) error) error
}

type Emitter interface {
	Emit(name string, args ...any)
}

type MergeConflictError struct {
	Reason string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict: %s", e.Reason)
}

func NewManager(store IdentitiesStore, registry *services.Registry, emitter Emitter) (*Manager, error) {
	metrics, err := newManagerMetrics(otel.GetMeter())
	if err != nil {
		return nil, err
	}

	return &Manager{
		store:     store,
		registry:  registry,
		emitter:   emitter,
		validator: createIdentityValidator(),
		metrics:   metrics,
	}, nil
}

type Manager struct {
	store     IdentitiesStore
	registry  *services.Registry
	emitter   Emitter
	validator *validator.Validate
	metrics   *managerMetrics
}

// ResolveOrCreate turns a verified remote identity into the durable local
// one. The first login for a (serviceId, remoteId) pair allocates a fresh
// v4 local uuid; later logins reuse the stored row and refresh the username
// when the service reports a new one. Concurrent first logins are resolved
// through the unique constraint: the loser of the insert race retries as
// a lookup
func (m *Manager) ResolveOrCreate(ctx context.Context, serviceId int, remoteId string, username string) (*db.User, error) {
	err := m.validator.Var(username, "required,username,max=21")
	if err != nil {
		return nil, &ValidationError{Field: "username", Value: username}
	}

	err = m.validator.Var(remoteId, "required,uuid_any")
	if err != nil {
		return nil, &ValidationError{Field: "remoteId", Value: remoteId}
	}

	remoteId = yggdrasil.NormalizeUuid(remoteId)

	user, err := m.resolveOrCreateOnce(ctx, serviceId, remoteId, username)
	if errors.Is(err, db.ErrDuplicateKey) {
		// Someone else has just inserted the same identity
		m.metrics.Conflicts.Add(ctx, 1)
		user, err = m.resolveOrCreateOnce(ctx, serviceId, remoteId, username)
	}

	if err != nil {
		return nil, err
	}

	m.metrics.Resolved.Add(ctx, 1)

	return user, nil
}

func (m *Manager) resolveOrCreateOnce(ctx context.Context, serviceId int, remoteId string, username string) (*db.User, error) {
	var user *db.User
	err := m.store.Transactionally(ctx, func(store *db.SQLStore) error {
		found, err := store.FindUserByRemoteId(ctx, serviceId, remoteId)
		if err != nil {
			return err
		}

		if found == nil {
			user = &db.User{
				LocalUuid: yggdrasil.NormalizeUuid(uuid.New().String()),
				ServiceId: serviceId,
				RemoteId:  remoteId,
				Username:  username,
				Active:    true,
			}

			err = store.InsertUser(ctx, user)
			if err != nil {
				return err
			}

			m.metrics.Created.Add(ctx, 1)
			m.emitter.Emit("identity:created", user.LocalUuid, username)
		} else {
			user = found
			if found.Username != username {
				err = store.UpdateUsername(ctx, found.LocalUuid, username)
				if err != nil {
					return err
				}

				user.Username = username
			}
		}

		return store.ClaimUsername(ctx, normalizeUsername(username), user.LocalUuid)
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// QueryByUsername returns every identity that ever reported the name.
// More than one row is possible when the same name exists on several
// services, even though only one of them occupies the in-game name
func (m *Manager) QueryByUsername(ctx context.Context, username string) ([]*db.User, error) {
	return m.store.FindUsersByUsername(ctx, username)
}

func (m *Manager) QueryByLocalUuid(ctx context.Context, localUuid string) (*db.User, error) {
	err := m.validator.Var(localUuid, "required,uuid_any")
	if err != nil {
		return nil, &ValidationError{Field: "uuid", Value: localUuid}
	}

	return m.store.FindUserByLocalUuid(ctx, yggdrasil.NormalizeUuid(localUuid))
}

// EraseUsername frees the in-game name. The caller is responsible for
// kicking a currently connected holder of the name, the engine doesn't
// track live sessions
func (m *Manager) EraseUsername(ctx context.Context, username string) (int64, error) {
	affected, err := m.store.EraseUsername(ctx, normalizeUsername(username))
	if err != nil {
		return 0, err
	}

	if affected != 0 {
		m.emitter.Emit("identity:username_erased", normalizeUsername(username))
	}

	return affected, nil
}

// MergeIdentities re-points everything owned by the source identity to the
// target and marks the source inactive, all in a single transaction. When
// the target already owns a restoration cache row the transaction fails
// and nothing is changed
func (m *Manager) MergeIdentities(ctx context.Context, sourceLocalUuid, targetLocalUuid string) error {
	for _, id := range []string{sourceLocalUuid, targetLocalUuid} {
		if err := m.validator.Var(id, "required,uuid_any"); err != nil {
			return &ValidationError{Field: "uuid", Value: id}
		}
	}

	sourceLocalUuid = yggdrasil.NormalizeUuid(sourceLocalUuid)
	targetLocalUuid = yggdrasil.NormalizeUuid(targetLocalUuid)
	if sourceLocalUuid == targetLocalUuid {
		return &MergeConflictError{Reason: "source and target are the same identity"}
	}

	err := m.store.Transactionally(ctx, func(store *db.SQLStore) error {
		source, err := store.FindUserByLocalUuid(ctx, sourceLocalUuid)
		if err != nil {
			return err
		}

		if source == nil {
			return &MergeConflictError{Reason: "source identity does not exist"}
		}

		if !source.Active {
			return &MergeConflictError{Reason: "source identity is already merged"}
		}

		target, err := store.FindUserByLocalUuid(ctx, targetLocalUuid)
		if err != nil {
			return err
		}

		if target == nil {
			return &MergeConflictError{Reason: "target identity does not exist"}
		}

		err = store.RepointOccupancies(ctx, sourceLocalUuid, targetLocalUuid)
		if err != nil {
			return err
		}

		err = store.RepointRestorerEntries(ctx, source.RemoteId, target.RemoteId)
		if err != nil {
			return err
		}

		return store.DeactivateUser(ctx, sourceLocalUuid)
	})
	if err != nil {
		return err
	}

	m.metrics.Merged.Add(ctx, 1)
	m.emitter.Emit("identity:merged", sourceLocalUuid, targetLocalUuid)

	return nil
}

type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s has an invalid value %q", e.Field, e.Value)
}

func normalizeUsername(username string) string {
	return strings.ToLower(username)
}

func createIdentityValidator() *validator.Validate {
	validate := validator.New()

	regexUuidAny := regexp.MustCompile("(?i)^[a-f0-9]{8}-?[a-f0-9]{4}-?[a-f0-9]{4}-?[a-f0-9]{4}-?[a-f0-9]{12}$")
	_ = validate.RegisterValidation("uuid_any", func(fl validator.FieldLevel) bool {
		return regexUuidAny.MatchString(fl.Field().String())
	})

	regexUsername := regexp.MustCompile(`^[-\w.!$%^&*()\[\]:;]+$`)
	_ = validate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return regexUsername.MatchString(fl.Field().String())
	})

	return validate
}

func newManagerMetrics(meter metric.Meter) (*managerMetrics, error) {
	m := &managerMetrics{}
	var errors, err error

	m.Resolved, err = meter.Int64Counter("multilogin.identity.resolved", metric.WithUnit("{login}"))
	errors = multierr.Append(errors, err)

	m.Created, err = meter.Int64Counter("multilogin.identity.created", metric.WithUnit("{identity}"))
	errors = multierr.Append(errors, err)

	m.Conflicts, err = meter.Int64Counter("multilogin.identity.insert_conflict", metric.WithUnit("{conflict}"))
	errors = multierr.Append(errors, err)

	m.Merged, err = meter.Int64Counter("multilogin.identity.merged", metric.WithUnit("{merge}"))
	errors = multierr.Append(errors, err)

	return m, errors
}

type managerMetrics struct {
	Resolved  metric.Int64Counter
	Created   metric.Int64Counter
	Conflicts metric.Int64Counter
	Merged    metric.Int64Counter
}
