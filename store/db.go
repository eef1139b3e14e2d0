package store

import (
	"context"
	_ "embed"
	nativeerrors "errors"
	"fmt"
	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/lefinal/masc-devices/errors"
	"go.uber.org/zap"
)

// DefaultMaxDBConnections is the maximum number of database connections that
// is used when no other one is provided.
const DefaultMaxDBConnections = 16

// pgErrUndefinedTable is the PostgreSQL error code for a relation that does
// not exist.
const pgErrUndefinedTable = "42P01"

// dbVersionKey is the key in the masc key-value table holding the dbVersion.
const dbVersionKey = "db-version"

//go:embed sql/1x0.sql
var dbMigration1x0 string

//go:embed sql/1x1.sql
var dbMigration1x1 string

// dbVersion is used for determining the current database version. This is
// saved in the masc key-value table when properly set up. If the version does
// not exist, the database needs to be initialized. If it is and the latest
// version is greater, migrations are performed.
type dbVersion string

// dbVersionZero is used when no database version could be found, and therefore
// we conclude that it has not been initialized yet.
const dbVersionZero dbVersion = "0"

// dbMigration is a migration up to version.
type dbMigration struct {
	version dbVersion
	up      string
}

// dbMigrations are the sql migrations in an ordered (!) list. The order is
// used to determine which migrations need to be done when the current database
// version is not the latest one.
var dbMigrations = []dbMigration{
	{
		version: "1.0",
		up:      dbMigration1x0,
	},
	{
		version: "1.1",
		up:      dbMigration1x1,
	},
}

// Connect connects to the database with the given connection string, performs
// a test query and all pending migrations.
func Connect(ctx context.Context, logger *zap.Logger, connectionStr string, maxDBConnections int) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connectionStr)
	if err != nil {
		return nil, errors.NewInvalidConfigError("parse db connection string", errors.Details{"err": err.Error()})
	}
	if maxDBConnections > 0 {
		poolConfig.MaxConns = int32(maxDBConnections)
	}
	db, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Error{
			Code:    errors.ErrFatal,
			Kind:    errors.KindDB,
			Err:     err,
			Message: "connect to database",
		}
	}
	err = testDBConnection(ctx, db)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "test db connection", nil)
	}
	err = performDBMigrations(ctx, logger, db)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "perform db migrations", nil)
	}
	return db, nil
}

// testDBConnection tests the database connection by simply querying 1.
func testDBConnection(ctx context.Context, db *pgxpool.Pool) error {
	q, _, err := goqu.Dialect("postgres").Select(goqu.V(1)).ToSQL()
	if err != nil {
		return errors.NewQueryToSQLError(err, nil)
	}
	var got int
	err = db.QueryRow(ctx, q).Scan(&got)
	if err != nil {
		return errors.NewScanDBRowError(err, "test query failed", q)
	}
	if got != 1 {
		return errors.Error{
			Code:    errors.ErrFatal,
			Kind:    errors.KindDB,
			Message: fmt.Sprintf("test db connection: expected 1 as result but got %d", got),
			Details: errors.Details{"got": got},
		}
	}
	return nil
}

// performDBMigrations performs all needed database migrations according to the
// (un)set database version. Migrations and the version update happen in the
// same transaction.
func performDBMigrations(ctx context.Context, logger *zap.Logger, db *pgxpool.Pool) error {
	currentVersion, err := retrieveCurrentDBVersion(ctx, db)
	if err != nil {
		return errors.Wrap(err, "retrieve current db version", nil)
	}
	logger.Info("current database version", zap.Any("version", currentVersion))
	migrationsToDo, err := getDBMigrationsToDo(currentVersion)
	if err != nil {
		return errors.Wrap(err, "get db migrations to do", nil)
	}
	if len(migrationsToDo) == 0 {
		return nil
	}
	updateVersionQuery, err := updateDBVersionQuery(currentVersion, migrationsToDo[len(migrationsToDo)-1].version)
	if err != nil {
		return errors.Wrap(err, "update db version query", nil)
	}
	tx, err := db.Begin(ctx)
	if err != nil {
		return errors.NewDBTxBeginError(err)
	}
	for i, migration := range migrationsToDo {
		logger.Info(fmt.Sprintf("performing database migration %d/%d...", i+1, len(migrationsToDo)),
			zap.Any("target_version", migration.version))
		_, err = tx.Exec(ctx, migration.up)
		if err != nil {
			rollbackTx(ctx, logger, tx, "database migration failed")
			return errors.Wrap(errors.NewExecQueryError(err, "exec migration", migration.up), "migrate",
				errors.Details{"target_version": migration.version})
		}
	}
	_, err = tx.Exec(ctx, updateVersionQuery)
	if err != nil {
		rollbackTx(ctx, logger, tx, "update database version failed")
		return errors.NewExecQueryError(err, "update db version", updateVersionQuery)
	}
	err = tx.Commit(ctx)
	if err != nil {
		return errors.NewDBTxCommitError(err)
	}
	return nil
}

// updateDBVersionQuery builds the query for setting the database version to
// newVersion. If currentVersion is dbVersionZero, the entry is inserted.
func updateDBVersionQuery(currentVersion dbVersion, newVersion dbVersion) (string, error) {
	var q string
	var err error
	if currentVersion == dbVersionZero {
		q, _, err = goqu.Dialect("postgres").Insert(goqu.T("masc")).Rows(goqu.Record{
			"key":   dbVersionKey,
			"value": newVersion,
		}).ToSQL()
	} else {
		q, _, err = goqu.Dialect("postgres").Update(goqu.T("masc")).
			Set(goqu.Record{"value": newVersion}).
			Where(goqu.C("key").Eq(dbVersionKey)).ToSQL()
	}
	if err != nil {
		return "", errors.NewQueryToSQLError(err, errors.Details{"new_version": newVersion})
	}
	return q, nil
}

// getDBMigrationsToDo retrieves all database migrations that need to be
// performed. If the version is dbVersionZero, it will return all migrations.
// If the version is unknown, an error will be returned.
func getDBMigrationsToDo(currentVersion dbVersion) ([]dbMigration, error) {
	if currentVersion == dbVersionZero {
		return dbMigrations, nil
	}
	found := false
	migrationsToDo := make([]dbMigration, 0)
	for _, migration := range dbMigrations {
		if migration.version == currentVersion {
			if found {
				return nil, errors.Error{
					Code:    errors.ErrInternal,
					Kind:    errors.KindShouldNotHappen,
					Message: fmt.Sprintf("duplicate database version %v in available migrations", currentVersion),
					Details: errors.Details{"version": currentVersion},
				}
			}
			found = true
			// Everything up to this version is already done.
			continue
		}
		if found {
			migrationsToDo = append(migrationsToDo, migration)
		}
	}
	if !found {
		return nil, errors.NewResourceNotFoundError(fmt.Sprintf("no database version found matching %v", currentVersion),
			errors.Details{"version": currentVersion})
	}
	return migrationsToDo, nil
}

// retrieveCurrentDBVersion retrieves the current dbVersion from the given
// database. If no version could be found, dbVersionZero will be returned.
func retrieveCurrentDBVersion(ctx context.Context, db *pgxpool.Pool) (dbVersion, error) {
	q, _, err := goqu.Dialect("postgres").From(goqu.T("masc")).
		Select(goqu.C("value")).
		Where(goqu.C("key").Eq(dbVersionKey)).ToSQL()
	if err != nil {
		return "", errors.NewQueryToSQLError(err, nil)
	}
	var versionStr string
	err = db.QueryRow(ctx, q).Scan(&versionStr)
	if err != nil {
		if isVersionMissing(err) {
			return dbVersionZero, nil
		}
		return "", errors.NewScanDBRowError(err, "retrieve db version", q)
	}
	return dbVersion(versionStr), nil
}

// isVersionMissing checks whether the given error originates from the masc
// table not existing yet or not holding a version entry.
func isVersionMissing(err error) bool {
	if nativeerrors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return nativeerrors.As(err, &pgErr) && pgErr.Code == pgErrUndefinedTable
}
