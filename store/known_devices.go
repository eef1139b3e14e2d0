package store

import (
	"context"
	"github.com/doug-martin/goqu/v9"
	"github.com/gobuffalo/nulls"
	"github.com/lefinal/masc-devices/errors"
	"time"
)

// KnownDevice is a device that was paired before.
type KnownDevice struct {
	// ID is the transport-prefixed id of the device.
	ID string
	// Name is the optional name the device had when pairing.
	Name nulls.String
	// PairedAt is when the device was paired.
	PairedAt time.Time
}

// knownDevicesQuery builds the query for KnownDevices.
func (m *Mall) knownDevicesQuery() (string, error) {
	q, _, err := m.dialect.From(goqu.T("known_devices")).
		Select(goqu.C("id"),
			goqu.C("name"),
			goqu.C("paired_at")).
		Order(goqu.C("paired_at").Asc(), goqu.C("id").Asc()).ToSQL()
	if err != nil {
		return "", errors.NewQueryToSQLError(err, nil)
	}
	return q, nil
}

// KnownDevices retrieves all known devices ordered by the time they were
// paired.
func (m *Mall) KnownDevices(ctx context.Context) ([]KnownDevice, error) {
	q, err := m.knownDevicesQuery()
	if err != nil {
		return nil, errors.Wrap(err, "known devices query", nil)
	}
	// Query.
	rows, err := m.db.Query(ctx, q)
	if err != nil {
		return nil, errors.NewExecQueryError(err, "query known devices", q)
	}
	defer rows.Close()
	// Scan.
	devices := make([]KnownDevice, 0)
	for rows.Next() {
		var device KnownDevice
		err = rows.Scan(&device.ID,
			&device.Name,
			&device.PairedAt)
		if err != nil {
			return nil, errors.NewScanDBRowError(err, "scan known device", q)
		}
		devices = append(devices, device)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.NewExecQueryError(err, "read known devices", q)
	}
	return devices, nil
}
