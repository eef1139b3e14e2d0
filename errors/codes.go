package errors

type Code string

const (
	ErrAborted           Code = "aborted"
	ErrBadRequest        Code = "bad-request"
	ErrCommunication     Code = "communication"
	ErrProtocolViolation Code = "protocol-violation"
	ErrFatal             Code = "fatal"
	ErrNotFound          Code = "not-found"
	ErrInternal          Code = "internal"
	ErrUnexpected        Code = "unexpected"
)

type Kind string

const (
	// KindDB is used for general database errors.
	KindDB Kind = "db"
	// KindDBQuery is used when executing a query fails.
	KindDBQuery Kind = "db-query"
	// KindDBScan is used when scanning a result row fails.
	KindDBScan Kind = "db-scan"
	// KindDBTx is used when beginning or committing a transaction fails.
	KindDBTx Kind = "db-tx"
	// KindDBRollback is used when rolling back a transaction fails.
	KindDBRollback Kind = "db-rollback"
	// KindQueryToSQL is used when building an SQL query fails.
	KindQueryToSQL Kind = "query-to-sql"
	KindDecodeJSON Kind = "decode-json"
	KindEncodeJSON Kind = "encode-json"
	// KindInvalidConfig is used when the provided configuration is not usable.
	KindInvalidConfig Kind = "invalid-config"
	// KindResourceNotFound is used for resources that were requested but do not
	// exist.
	KindResourceNotFound Kind = "resource-not-found"
	// KindShouldNotHappen is used for states that are only reachable through
	// programming mistakes.
	KindShouldNotHappen Kind = "should-not-happen"
	// KindSubscribe is used when subscribing to a discovery stream fails.
	KindSubscribe Kind = "subscribe"
	KindUnexpected Kind = "unexpected"
	// KindUnknownDevice is used when an unknown device is being requested.
	KindUnknownDevice Kind = "unknown-device"
)
