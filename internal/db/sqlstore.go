package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"ely.by/multilogin/internal/db/migrations"
)

// ErrDuplicateKey signals a unique constraint violation. On the
// resolve-or-create path it means another connection won the insert race
// and the caller should retry as a lookup
var ErrDuplicateKey = errors.New("duplicate key")

func NewPostgres(ctx context.Context, dsn string) (*Store, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open the database: %w", err)
	}

	err = RunMigrations(ctx, conn, "postgres")
	if err != nil {
		return nil, fmt.Errorf("unable to apply migrations: %w", err)
	}

	return NewStore(conn), nil
}

func RunMigrations(ctx context.Context, conn *sql.DB, dialect string) error {
	provider, err := goose.NewProvider(goose.Dialect(dialect), conn, migrations.Migrations)
	if err != nil {
		return err
	}

	_, err = provider.Up(ctx)

	return err
}

func NewStore(conn *sql.DB) *Store {
	return &Store{conn: conn, SQLStore: SQLStore{db: conn}}
}

// Store is the root handle over the connection pool. Repositories methods
// are available directly for single-statement operations; multi-statement
// operations go through Transactionally
type Store struct {
	SQLStore
	conn *sql.DB
}

func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Transactionally runs fn against a store view bound to a single
// transaction. fn returning an error rolls everything back
func (s *Store) Transactionally(ctx context.Context, fn func(store *SQLStore) error) error {
	return WithTx(ctx, s.conn, nil, func(ctx context.Context, tx DBTX) error {
		return fn(&SQLStore{db: tx})
	})
}

// SQLStore implements the entity operations over a plain connection
// or a transaction
type SQLStore struct {
	db DBTX
}

func (s *SQLStore) FindUserByRemoteId(ctx context.Context, serviceId int, remoteId string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT local_uuid, service_id, remote_id, username, active FROM users
		 WHERE service_id = $1 AND remote_id = $2`,
		serviceId, remoteId,
	))
}

func (s *SQLStore) FindUserByLocalUuid(ctx context.Context, localUuid string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT local_uuid, service_id, remote_id, username, active FROM users
		 WHERE local_uuid = $1`,
		localUuid,
	))
}

// FindUsersByUsername returns every identity that reported this username,
// across all services. Matching is case-insensitive
func (s *SQLStore) FindUsersByUsername(ctx context.Context, username string) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT local_uuid, service_id, remote_id, username, active FROM users
		 WHERE LOWER(username) = LOWER($1)`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user := &User{}
		err = rows.Scan(&user.LocalUuid, &user.ServiceId, &user.RemoteId, &user.Username, &user.Active)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}

		users = append(users, user)
	}

	return users, rows.Err()
}

func (s *SQLStore) InsertUser(ctx context.Context, user *User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (local_uuid, service_id, remote_id, username, active)
		 VALUES ($1, $2, $3, $4, $5)`,
		user.LocalUuid, user.ServiceId, user.RemoteId, user.Username, user.Active,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}

		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (s *SQLStore) UpdateUsername(ctx context.Context, localUuid string, username string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = $1 WHERE local_uuid = $2`,
		username, localUuid,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (s *SQLStore) DeactivateUser(ctx context.Context, localUuid string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET active = FALSE WHERE local_uuid = $1`,
		localUuid,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

// ClaimUsername points the in-game name at the given identity,
// displacing the previous occupant if there was one
func (s *SQLStore) ClaimUsername(ctx context.Context, username string, localUuid string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO in_game_profiles (username, local_uuid) VALUES ($1, $2)
		 ON CONFLICT (username) DO UPDATE SET local_uuid = EXCLUDED.local_uuid`,
		username, localUuid,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (s *SQLStore) FindOccupancy(ctx context.Context, username string) (*ProfileOccupancy, error) {
	occupancy := &ProfileOccupancy{}
	err := s.db.QueryRowContext(ctx,
		`SELECT username, local_uuid FROM in_game_profiles WHERE username = $1`,
		username,
	).Scan(&occupancy.Username, &occupancy.LocalUuid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("db error: %w", err)
	}

	return occupancy, nil
}

// EraseUsername removes the occupancy row for the name, freeing it for
// the next player. The identity row stays untouched. Returns the number
// of affected rows (0 or 1), so erasing an unoccupied name isn't an error
func (s *SQLStore) EraseUsername(ctx context.Context, username string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM in_game_profiles WHERE username = $1`,
		username,
	)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return result.RowsAffected()
}

func (s *SQLStore) RepointOccupancies(ctx context.Context, fromLocalUuid, toLocalUuid string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE in_game_profiles SET local_uuid = $1 WHERE local_uuid = $2`,
		toLocalUuid, fromLocalUuid,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (s *SQLStore) FindRestorerEntry(ctx context.Context, onlineUuid string) (*RestorerEntry, error) {
	entry := &RestorerEntry{}
	err := s.db.QueryRowContext(ctx,
		`SELECT online_uuid, skin_url, restorer_data FROM restorer_entries WHERE online_uuid = $1`,
		onlineUuid,
	).Scan(&entry.OnlineUuid, &entry.SkinUrl, &entry.RestorerData)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("db error: %w", err)
	}

	return entry, nil
}

func (s *SQLStore) UpsertRestorerEntry(ctx context.Context, entry *RestorerEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO restorer_entries (online_uuid, skin_url, restorer_data) VALUES ($1, $2, $3)
		 ON CONFLICT (online_uuid) DO UPDATE SET skin_url = EXCLUDED.skin_url, restorer_data = EXCLUDED.restorer_data`,
		entry.OnlineUuid, entry.SkinUrl, entry.RestorerData,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (s *SQLStore) RepointRestorerEntries(ctx context.Context, fromOnlineUuid, toOnlineUuid string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE restorer_entries SET online_uuid = $1 WHERE online_uuid = $2`,
		toOnlineUuid, fromOnlineUuid,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}

		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (s *SQLStore) scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	err := row.Scan(&user.LocalUuid, &user.ServiceId, &user.RemoteId, &user.Username, &user.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	// The sqlite driver used in tests reports constraint violations
	// as plain strings only
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
