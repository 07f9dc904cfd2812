package postgres

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/slackmgr/orderbus/config"
)

// validIdentifier matches valid PostgreSQL unquoted identifiers.
// Must start with letter or underscore, followed by letters, digits, or underscores.
var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// OrderModelVersion is written to the version column of every order row.
const OrderModelVersion = 1

// SSLMode represents PostgreSQL SSL connection modes.
type SSLMode string

const (
	SSLModeDisable    SSLMode = "disable"     // No SSL
	SSLModeAllow      SSLMode = "allow"       // Try non-SSL first, then SSL
	SSLModePrefer     SSLMode = "prefer"      // Try SSL first, then non-SSL (default)
	SSLModeRequire    SSLMode = "require"     // Only SSL (no certificate verification)
	SSLModeVerifyCA   SSLMode = "verify-ca"   // SSL with CA verification
	SSLModeVerifyFull SSLMode = "verify-full" // SSL with CA and hostname verification
)

// Option is a functional option for configuring a Client.
type Option func(*options)

type options struct {
	host                      string
	port                      int
	user                      string
	password                  string
	database                  string
	sslMode                   SSLMode
	poolMaxConnections        *int32
	poolMinConnections        *int32
	poolMaxConnectionLifetime *time.Duration
	poolMaxConnectionIdleTime *time.Duration
	ordersTable               string
	clock                     func() time.Time
}

func newOptions() *options {
	return &options{
		host:        "localhost",
		port:        5432,
		sslMode:     SSLModePrefer,
		ordersTable: "orders",
		clock:       time.Now,
	}
}

func WithHost(host string) Option {
	return func(o *options) { o.host = host }
}

func WithPort(port int) Option {
	return func(o *options) { o.port = port }
}

func WithUser(user string) Option {
	return func(o *options) { o.user = user }
}

func WithPassword(password string) Option {
	return func(o *options) { o.password = password }
}

func WithDatabase(database string) Option {
	return func(o *options) { o.database = database }
}

func WithSSLMode(mode SSLMode) Option {
	return func(o *options) { o.sslMode = mode }
}

func WithPoolMaxConnections(n int32) Option {
	return func(o *options) { o.poolMaxConnections = &n }
}

func WithPoolMinConnections(n int32) Option {
	return func(o *options) { o.poolMinConnections = &n }
}

func WithPoolMaxConnectionLifetime(d time.Duration) Option {
	return func(o *options) { o.poolMaxConnectionLifetime = &d }
}

func WithPoolMaxConnectionIdleTime(d time.Duration) Option {
	return func(o *options) { o.poolMaxConnectionIdleTime = &d }
}

// FromConfig returns the options for the given connection settings and
// orders table. Pool settings left at zero are not applied.
func FromConfig(cfg config.PostgresConfig, ordersTable string) []Option {
	opts := []Option{
		WithHost(cfg.Host),
		WithPort(cfg.Port),
		WithUser(cfg.User),
		WithPassword(cfg.Password),
		WithDatabase(cfg.Database),
		WithSSLMode(SSLMode(cfg.SSLMode)),
		WithOrdersTable(ordersTable),
	}

	if cfg.PoolMaxConns != 0 {
		opts = append(opts, WithPoolMaxConnections(cfg.PoolMaxConns))
	}

	if cfg.PoolMinConns != 0 {
		opts = append(opts, WithPoolMinConnections(cfg.PoolMinConns))
	}

	if cfg.PoolMaxConnLifetime != 0 {
		opts = append(opts, WithPoolMaxConnectionLifetime(cfg.PoolMaxConnLifetime))
	}

	if cfg.PoolMaxConnIdleTime != 0 {
		opts = append(opts, WithPoolMaxConnectionIdleTime(cfg.PoolMaxConnIdleTime))
	}

	return opts
}

// WithOrdersTable sets the table orders are written to. Defaults to "orders".
func WithOrdersTable(name string) Option {
	return func(o *options) { o.ordersTable = name }
}

// WithClock sets the clock used for the persisted_at column.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

type dbRow struct {
	DataType   string
	IsNullable string
}

func (o *options) validate() error {
	if o.port < 1 || o.port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", o.port)
	}

	if o.user == "" {
		return errors.New("user is required")
	}

	if o.database == "" {
		return errors.New("database is required")
	}

	if !o.sslMode.isValid() {
		return fmt.Errorf("invalid SSL mode: %s", o.sslMode)
	}

	if err := o.validatePool(); err != nil {
		return err
	}

	if err := validateTableName(o.ordersTable); err != nil {
		return fmt.Errorf("invalid orders table name: %w", err)
	}

	if o.clock == nil {
		return errors.New("clock cannot be nil")
	}

	return nil
}

func (o *options) validatePool() error {
	if o.poolMaxConnections != nil && *o.poolMaxConnections < 1 {
		return fmt.Errorf("pool max connections must be at least 1, got %d", *o.poolMaxConnections)
	}

	if o.poolMinConnections != nil && *o.poolMinConnections < 0 {
		return fmt.Errorf("pool min connections cannot be negative, got %d", *o.poolMinConnections)
	}

	if o.poolMaxConnections != nil && o.poolMinConnections != nil && *o.poolMinConnections > *o.poolMaxConnections {
		return fmt.Errorf("pool min connections %d exceeds max connections %d", *o.poolMinConnections, *o.poolMaxConnections)
	}

	if o.poolMaxConnectionLifetime != nil && *o.poolMaxConnectionLifetime < 0 {
		return fmt.Errorf("pool max connection lifetime cannot be negative, got %s", *o.poolMaxConnectionLifetime)
	}

	if o.poolMaxConnectionIdleTime != nil && *o.poolMaxConnectionIdleTime < 0 {
		return fmt.Errorf("pool max connection idle time cannot be negative, got %s", *o.poolMaxConnectionIdleTime)
	}

	return nil
}

func validateTableName(name string) error {
	if !validIdentifier.MatchString(name) {
		return fmt.Errorf("table name %q contains invalid characters", name)
	}

	return nil
}

// isValid returns true if the SSL mode is a valid PostgreSQL SSL mode.
func (s SSLMode) isValid() bool {
	switch s {
	case SSLModeDisable, SSLModeAllow, SSLModePrefer, SSLModeRequire, SSLModeVerifyCA, SSLModeVerifyFull:
		return true
	default:
		return false
	}
}

func (o *options) connectionString() string {
	host := net.JoinHostPort(o.host, strconv.Itoa(o.port))

	user := url.QueryEscape(o.user)

	if o.password != "" {
		user += ":" + url.QueryEscape(o.password)
	}

	return fmt.Sprintf("postgres://%s@%s/%s?sslmode=%s", user, host, o.database, o.sslMode)
}

func (o *options) createStatements() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id text PRIMARY KEY, version SMALLINT NOT NULL, customer_id text NOT NULL, total_amount NUMERIC NOT NULL, currency text NOT NULL, created_at_iso text NOT NULL, attrs JSONB NOT NULL, persisted_at TIMESTAMP WITH TIME ZONE NOT NULL);`, o.ordersTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_customer_idx ON %s (customer_id);`, o.ordersTable, o.ordersTable),
	}
}

func (o *options) dropStatements() []string {
	return []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE;", o.ordersTable),
	}
}

func (o *options) verifyCurrentDatabaseVersion(actualRows map[string]*dbRow) error {
	expectedRows := map[string]*dbRow{
		o.ordersTable + ".id":             {DataType: "text", IsNullable: "NO"},
		o.ordersTable + ".version":        {DataType: "smallint", IsNullable: "NO"},
		o.ordersTable + ".customer_id":    {DataType: "text", IsNullable: "NO"},
		o.ordersTable + ".total_amount":   {DataType: "numeric", IsNullable: "NO"},
		o.ordersTable + ".currency":       {DataType: "text", IsNullable: "NO"},
		o.ordersTable + ".created_at_iso": {DataType: "text", IsNullable: "NO"},
		o.ordersTable + ".attrs":          {DataType: "jsonb", IsNullable: "NO"},
		o.ordersTable + ".persisted_at":   {DataType: "timestamp with time zone", IsNullable: "NO"},
	}

	for id, expectedRow := range expectedRows {
		actual, ok := actualRows[id]
		if !ok {
			return fmt.Errorf("expected row '%s' not found in current database schema", id)
		}

		if !strings.EqualFold(actual.DataType, expectedRow.DataType) {
			return fmt.Errorf("data type mismatch for '%s': expected %s, got %s", id, expectedRow.DataType, actual.DataType)
		}

		if !strings.EqualFold(actual.IsNullable, expectedRow.IsNullable) {
			return fmt.Errorf("nullability mismatch for '%s': expected %s, got %s", id, expectedRow.IsNullable, actual.IsNullable)
		}
	}

	return nil
}
