package store

import (
	"context"
	"github.com/doug-martin/goqu/v9"
	"github.com/lefinal/masc-devices/errors"
	"time"
)

// lastConnectedDeviceRowID is the id of the only row in the
// last_connected_device table.
const lastConnectedDeviceRowID = 1

// LastConnectedDevice is the device that was selected last via a wired
// connection.
type LastConnectedDevice struct {
	// DeviceID is the id of the device.
	DeviceID string
	// Name is the device name at the time of selection.
	Name string
	// ModelID is the hardware model id.
	ModelID string
	// Wired is whether the device was connected via cable.
	Wired bool
	// ConnectedAt is when the device was selected.
	ConnectedAt time.Time
}

// setLastConnectedDeviceQuery builds the upsert query for
// SetLastConnectedDevice.
func (m *Mall) setLastConnectedDeviceQuery(device LastConnectedDevice) (string, error) {
	q, _, err := m.dialect.Insert(goqu.T("last_connected_device")).Rows(goqu.Record{
		"id":           lastConnectedDeviceRowID,
		"device_id":    device.DeviceID,
		"device_name":  device.Name,
		"model_id":     device.ModelID,
		"wired":        device.Wired,
		"connected_at": device.ConnectedAt,
	}).OnConflict(goqu.DoUpdate("id", goqu.Record{
		"device_id":    goqu.L("EXCLUDED.device_id"),
		"device_name":  goqu.L("EXCLUDED.device_name"),
		"model_id":     goqu.L("EXCLUDED.model_id"),
		"wired":        goqu.L("EXCLUDED.wired"),
		"connected_at": goqu.L("EXCLUDED.connected_at"),
	})).ToSQL()
	if err != nil {
		return "", errors.NewQueryToSQLError(err, errors.Details{"device_id": device.DeviceID})
	}
	return q, nil
}

// SetLastConnectedDevice stores the given LastConnectedDevice and replaces the
// previous one.
func (m *Mall) SetLastConnectedDevice(ctx context.Context, device LastConnectedDevice) error {
	q, err := m.setLastConnectedDeviceQuery(device)
	if err != nil {
		return errors.Wrap(err, "set last connected device query", nil)
	}
	result, err := m.db.Exec(ctx, q)
	if err != nil {
		return errors.NewExecQueryError(err, "exec set last connected device query", q)
	}
	if result.RowsAffected() != 1 {
		return errors.NewInternalError("last connected device not stored", errors.Details{
			"query":         q,
			"rows_affected": result.RowsAffected(),
		})
	}
	return nil
}

// lastConnectedDeviceQuery builds the query for LastConnectedDevice.
func (m *Mall) lastConnectedDeviceQuery() (string, error) {
	q, _, err := m.dialect.From(goqu.T("last_connected_device")).
		Select(goqu.C("device_id"),
			goqu.C("device_name"),
			goqu.C("model_id"),
			goqu.C("wired"),
			goqu.C("connected_at")).
		Where(goqu.C("id").Eq(lastConnectedDeviceRowID)).ToSQL()
	if err != nil {
		return "", errors.NewQueryToSQLError(err, nil)
	}
	return q, nil
}

// LastConnectedDevice retrieves the LastConnectedDevice. If none was set, an
// errors.ErrNotFound error is returned.
func (m *Mall) LastConnectedDevice(ctx context.Context) (LastConnectedDevice, error) {
	q, err := m.lastConnectedDeviceQuery()
	if err != nil {
		return LastConnectedDevice{}, errors.Wrap(err, "last connected device query", nil)
	}
	rows, err := m.db.Query(ctx, q)
	if err != nil {
		return LastConnectedDevice{}, errors.NewExecQueryError(err, "query last connected device", q)
	}
	defer rows.Close()
	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return LastConnectedDevice{}, errors.NewExecQueryError(err, "read last connected device", q)
		}
		return LastConnectedDevice{}, errors.NewResourceNotFoundError("no last connected device", nil)
	}
	var device LastConnectedDevice
	err = rows.Scan(&device.DeviceID,
		&device.Name,
		&device.ModelID,
		&device.Wired,
		&device.ConnectedAt)
	if err != nil {
		return LastConnectedDevice{}, errors.NewScanDBRowError(err, "scan last connected device", q)
	}
	return device, nil
}
