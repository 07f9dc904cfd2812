package postgres

import "time"

// Export internal symbols for testing.
// This file is only compiled during testing.

var (
	ExportValidateTableName = validateTableName
	ExportGetOrderUpsertSQL = (*Client).getOrderUpsertSQL

	ExportValidate = func(opts ...Option) error {
		o := newOptions()
		for _, opt := range opts {
			opt(o)
		}

		return o.validate()
	}

	ExportConnectionString = func(opts ...Option) string {
		o := newOptions()
		for _, opt := range opts {
			opt(o)
		}

		return o.connectionString()
	}

	ExportCreateStatements = func(opts ...Option) []string {
		o := newOptions()
		for _, opt := range opts {
			opt(o)
		}

		return o.createStatements()
	}

	ExportPoolSettings = func(opts ...Option) PoolSettings {
		o := newOptions()
		for _, opt := range opts {
			opt(o)
		}

		return PoolSettings{
			MaxConns:        o.poolMaxConnections,
			MinConns:        o.poolMinConnections,
			MaxConnLifetime: o.poolMaxConnectionLifetime,
			MaxConnIdleTime: o.poolMaxConnectionIdleTime,
		}
	}

	ExportVerifyDatabaseSchema = func(opts ...Option) func(map[string]*dbRow) error {
		o := newOptions()
		for _, opt := range opts {
			opt(o)
		}

		return o.verifyCurrentDatabaseVersion
	}
)

// PoolSettings exposes the pool options for testing. Nil fields are unset.
type PoolSettings struct {
	MaxConns        *int32
	MinConns        *int32
	MaxConnLifetime *time.Duration
	MaxConnIdleTime *time.Duration
}

// DBRow exports the internal dbRow type for testing.
type DBRow = dbRow

// Pool exports the internal pool interface for testing.
type Pool = pool

// SetPool sets the connection pool for testing purposes.
func (c *Client) SetPool(p Pool) {
	c.conn = p
}
