package store

import (
	"context"
	"github.com/doug-martin/goqu/v9"
	"github.com/lefinal/masc-devices/errors"
)

// hasConnectedDeviceKey is the key in the masc key-value table that is set
// once any device was selected.
const hasConnectedDeviceKey = "has-connected-device"

// setHasConnectedDeviceQuery builds the query for SetHasConnectedDevice.
func (m *Mall) setHasConnectedDeviceQuery() (string, error) {
	q, _, err := m.dialect.Insert(goqu.T("masc")).Rows(goqu.Record{
		"key":   hasConnectedDeviceKey,
		"value": "true",
	}).OnConflict(goqu.DoNothing()).ToSQL()
	if err != nil {
		return "", errors.NewQueryToSQLError(err, nil)
	}
	return q, nil
}

// SetHasConnectedDevice remembers that a device was connected at least once.
func (m *Mall) SetHasConnectedDevice(ctx context.Context) error {
	q, err := m.setHasConnectedDeviceQuery()
	if err != nil {
		return errors.Wrap(err, "set has connected device query", nil)
	}
	_, err = m.db.Exec(ctx, q)
	if err != nil {
		return errors.NewExecQueryError(err, "exec set has connected device query", q)
	}
	return nil
}

// hasConnectedDeviceQuery builds the query for HasConnectedDevice.
func (m *Mall) hasConnectedDeviceQuery() (string, error) {
	q, _, err := m.dialect.From(goqu.T("masc")).
		Select(goqu.C("value")).
		Where(goqu.C("key").Eq(hasConnectedDeviceKey)).ToSQL()
	if err != nil {
		return "", errors.NewQueryToSQLError(err, nil)
	}
	return q, nil
}

// HasConnectedDevice checks whether a device was connected at least once.
func (m *Mall) HasConnectedDevice(ctx context.Context) (bool, error) {
	q, err := m.hasConnectedDeviceQuery()
	if err != nil {
		return false, errors.Wrap(err, "has connected device query", nil)
	}
	rows, err := m.db.Query(ctx, q)
	if err != nil {
		return false, errors.NewExecQueryError(err, "query has connected device", q)
	}
	defer rows.Close()
	found := rows.Next()
	if err = rows.Err(); err != nil {
		return false, errors.NewExecQueryError(err, "read has connected device", q)
	}
	return found, nil
}
