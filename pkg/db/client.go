package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

const (
	slowQueryThreshold = 500 * time.Millisecond

	txAttempts  = 3
	txRetryBase = 20 * time.Millisecond
	pgSerialize = "40001"
	pgDeadlock  = "40P01"
)

// Pinger is the readiness surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Client owns the Postgres pool shared by the cart, order and outbox stores.
type Client struct {
	conn *gorm.DB
}

// New opens the pool described by cfg. Slow statements are reported through
// logg; everything else gorm would print is dropped.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}
	if cfg.Driver != "" && cfg.Driver != "postgres" {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if logg == nil {
		logg = logger.Nop()
	}

	conn, err := gorm.Open(
		postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true}),
		&gorm.Config{
			SkipDefaultTransaction: true,
			Logger: gormlogger.New(slowQueryWriter{logg: logg}, gormlogger.Config{
				SlowThreshold:             slowQueryThreshold,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
			}),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pool, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	logg.Info(logg.WithField(ctx, "max_open_conns", cfg.MaxOpenConns), "postgres.ready")
	return &Client{conn: conn}, nil
}

// Wrap binds an already opened connection, e.g. an in-memory sqlite handle in tests.
func Wrap(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

func (c *Client) Close() error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// WithTx runs fn in a transaction that rolls back on error or panic. The
// webhook and the success page can reconcile the same checkout at once, so a
// transaction Postgres aborts for serialization or deadlock is run again, up
// to txAttempts times in total.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	backoff := retry.WithMaxRetries(txAttempts-1, retry.WithJitter(txRetryBase/2, retry.NewExponential(txRetryBase)))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.conn.WithContext(ctx).Transaction(fn)
		if isTxConflict(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func isTxConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == pgSerialize || pgErr.Code == pgDeadlock)
}

// slowQueryWriter routes gorm's warnings into the service log.
type slowQueryWriter struct {
	logg *logger.Logger
}

func (w slowQueryWriter) Printf(format string, args ...any) {
	line := strings.TrimSpace(fmt.Sprintf(format, args...))
	w.logg.Warn(w.logg.WithField(context.Background(), "gorm", line), "postgres.slow_query")
}
