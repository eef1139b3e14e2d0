package errors

// NewInternalError creates a new ErrInternal error with the given message.
func NewInternalError(message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Message: message,
		Details: details,
	}
}

// NewInternalErrorFromErr creates a new ErrInternal error with the given
// original error and message.
func NewInternalErrorFromErr(err error, message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Err:     err,
		Message: message,
		Details: details,
	}
}

// NewResourceNotFoundError returns a new ErrNotFound error with kind
// KindResourceNotFound and the given message.
func NewResourceNotFoundError(message string, details Details) error {
	return Error{
		Code:    ErrNotFound,
		Kind:    KindResourceNotFound,
		Message: message,
		Details: details,
	}
}

// NewUnknownDeviceError returns a new ErrNotFound error with kind
// KindUnknownDevice for the given device id.
func NewUnknownDeviceError(deviceID string) error {
	return Error{
		Code:    ErrNotFound,
		Kind:    KindUnknownDevice,
		Message: "unknown device",
		Details: Details{"device_id": deviceID},
	}
}

// NewQueryToSQLError returns an ErrInternal error with kind KindQueryToSQL.
func NewQueryToSQLError(err error, details Details) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindQueryToSQL,
		Err:     err,
		Message: "query to sql",
		Details: details,
	}
}

// NewExecQueryError returns an ErrInternal error with kind KindDBQuery. The
// query is added to the details.
func NewExecQueryError(err error, message string, query string) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDBQuery,
		Err:     err,
		Message: message,
		Details: Details{"query": query},
	}
}

// NewScanDBRowError returns an ErrInternal error with kind KindDBScan.
func NewScanDBRowError(err error, message string, query string) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDBScan,
		Err:     err,
		Message: message,
		Details: Details{"query": query},
	}
}

// NewDBTxBeginError returns an ErrInternal error with kind KindDBTx.
func NewDBTxBeginError(err error) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDBTx,
		Err:     err,
		Message: "begin tx",
	}
}

// NewDBTxCommitError returns an ErrInternal error with kind KindDBTx.
func NewDBTxCommitError(err error) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDBTx,
		Err:     err,
		Message: "commit tx",
	}
}

// NewInvalidConfigError returns an ErrBadRequest error with kind
// KindInvalidConfig.
func NewInvalidConfigError(message string, details Details) error {
	return Error{
		Code:    ErrBadRequest,
		Kind:    KindInvalidConfig,
		Message: message,
		Details: details,
	}
}
