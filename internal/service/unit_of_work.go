package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/parc-api/pkg/database"
	appErrors "github.com/noah-isme/parc-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type keyLocker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// runInTx executes fn in one transaction and normalises failures into typed errors.
func runInTx(ctx context.Context, db txProvider, fn func(tx *sqlx.Tx) error) error {
	if db == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	if err := database.WithinTx(ctx, db, fn); err != nil {
		return asAppError(err, "failed to complete transaction")
	}
	return nil
}

// asAppError keeps typed errors and maps driver constraint failures; anything else becomes internal.
func asAppError(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "resource not found")
	case database.IsUniqueViolation(err):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "resource already exists")
	case database.IsForeignKeyViolation(err):
		return appErrors.Invalid(err, "referenced resource does not exist")
	case database.IsInvalidTextRepresentation(err):
		return appErrors.Invalid(err, "malformed identifier")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// lockKeys acquires every distinct key in sorted order. A nil locker is a no-op.
func lockKeys(ctx context.Context, locker keyLocker, keys ...string) (func(), error) {
	if locker == nil {
		return func() {}, nil
	}
	seen := make(map[string]struct{}, len(keys))
	ordered := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		ordered = append(ordered, key)
	}
	sort.Strings(ordered)

	releases := make([]func(), 0, len(ordered))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, key := range ordered {
		release, err := locker.Acquire(ctx, key)
		if err != nil {
			releaseAll()
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "trainer is being updated, retry shortly")
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}
