package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"exam-arena-service/internal/app"
	"exam-arena-service/internal/domain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Store is the bun-backed implementation of app.Store.
type Store struct {
	db  *bun.DB
	idb bun.IDB
	tx  bool
}

var _ app.Store = (*Store)(nil)

func NewStore(db *bun.DB) *Store {
	return &Store{db: db, idb: db}
}

// Open connects bun to Postgres through pgdriver.
func Open(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func (s *Store) WithinTx(ctx context.Context, fn func(app.Store) error) error {
	if s.tx {
		return fn(s)
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(&Store{db: s.db, idb: tx, tx: true})
	})
}

func (s *Store) Students() app.StudentRepository   { return studentRepo{s.idb} }
func (s *Store) Tests() app.TestRepository         { return testRepo{s.idb} }
func (s *Store) Attempts() app.AttemptRepository   { return attemptRepo{s.idb} }
func (s *Store) Rooms() app.RoomRepository         { return roomRepo{s.idb} }
func (s *Store) XP() app.XPRepository              { return xpRepo{s.idb} }
func (s *Store) Activity() app.ActivityRepository  { return activityRepo{s.idb} }
func (s *Store) Referrals() app.ReferralRepository { return referralRepo{s.idb} }

// isUniqueViolation reports whether err is a Postgres unique constraint failure.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}

// mapErr translates driver errors into domain errors.
func mapErr(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return notFound
	case isUniqueViolation(err):
		var pgErr pgdriver.Error
		errors.As(err, &pgErr)
		return fmt.Errorf("%w (%s)", domain.ErrDuplicate, pgErr.Field('n'))
	default:
		return err
	}
}

func affected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
