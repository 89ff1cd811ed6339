package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"ozon-price-tracker/internal/config"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("storage: record not found")
)

const (
	upsertProductSQL = `INSERT INTO products (
        product_id,
        url,
        name,
        current_price,
        previous_price,
        last_check
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (product_id) DO UPDATE
    SET
        url            = EXCLUDED.url,
        name           = EXCLUDED.name,
        current_price  = EXCLUDED.current_price,
        previous_price = EXCLUDED.previous_price,
        last_check     = EXCLUDED.last_check
    RETURNING id, product_id, url, name, current_price, previous_price, last_check, created_at;`

	getProductSQL = `SELECT
        id, product_id, url, name, current_price, previous_price, last_check, created_at
    FROM products
    WHERE product_id = $1;`

	listProductsSQL = `SELECT
        id, product_id, url, name, current_price, previous_price, last_check, created_at
    FROM products
    ORDER BY id;`

	upsertSubscriberSQL = `INSERT INTO subscribers (chat_id, username)
    VALUES ($1, $2)
    ON CONFLICT (chat_id) DO UPDATE SET username = EXCLUDED.username
    RETURNING id, chat_id, username, created_at;`

	subscribeSQL = `INSERT INTO subscriptions (subscriber_id, product_id)
    VALUES ($1, $2)
    ON CONFLICT DO NOTHING;`

	getSubscriberSQL = `SELECT id, chat_id, username, created_at
    FROM subscribers
    WHERE chat_id = $1;`

	unsubscribeSQL = `DELETE FROM subscriptions
    WHERE subscriber_id = $1 AND product_id = $2;`

	deleteOrphanProductSQL = `DELETE FROM products p
    WHERE p.id = $1
      AND NOT EXISTS (SELECT 1 FROM subscriptions sub WHERE sub.product_id = p.id);`

	listSubscriberProductsSQL = `SELECT
        p.id, p.product_id, p.url, p.name, p.current_price, p.previous_price, p.last_check, p.created_at
    FROM products p
    JOIN subscriptions sub ON sub.product_id = p.id
    JOIN subscribers s ON s.id = sub.subscriber_id
    WHERE s.chat_id = $1
    ORDER BY p.id;`

	listProductSubscribersSQL = `SELECT s.id, s.chat_id, s.username, s.created_at
    FROM subscribers s
    JOIN subscriptions sub ON sub.subscriber_id = s.id
    JOIN products p ON p.id = sub.product_id
    WHERE p.product_id = $1
    ORDER BY s.id;`

	insertPricePointSQL = `INSERT INTO price_points (product_id, price, source, observed_at)
    VALUES ($1, $2, $3, $4);`

	listPricePointsBetweenSQL = `SELECT id, product_id, price, source, observed_at
    FROM price_points
    WHERE product_id = $1
      AND observed_at >= $2
      AND observed_at < $3
    ORDER BY observed_at;`

	listRecentPricePointsSQL = `SELECT id, product_id, price, source, observed_at
    FROM price_points
    WHERE product_id = $1
    ORDER BY observed_at DESC
    LIMIT $2;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ProductStore defines operations on tracked products.
type ProductStore interface {
	UpsertProduct(ctx context.Context, product Product) (Product, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	DeleteProductIfOrphan(ctx context.Context, productRowID int64) (bool, error)
}

// SubscriberStore defines subscriber and subscription operations.
type SubscriberStore interface {
	UpsertSubscriber(ctx context.Context, chatID, username string) (Subscriber, error)
	GetSubscriber(ctx context.Context, chatID string) (Subscriber, error)
	Subscribe(ctx context.Context, subscriberID, productRowID int64) error
	Unsubscribe(ctx context.Context, subscriberID, productRowID int64) (bool, error)
	ListProductSubscribers(ctx context.Context, productID string) ([]Subscriber, error)
}

// HistoryStore defines price history operations.
type HistoryStore interface {
	InsertPricePoint(ctx context.Context, point PricePoint) error
	ListPricePointsBetween(ctx context.Context, productID string, from, to time.Time) ([]PricePoint, error)
	ListRecentPricePoints(ctx context.Context, productID string, limit int) ([]PricePoint, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// NewPool configures a PostgreSQL connection pool from runtime settings and
// verifies the database is reachable, so a bad DSN fails at startup rather
// than on the first cycle.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return pool, nil
}

// Store aggregates access to products, subscribers, and price history.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a
// release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

// UpsertProduct persists a full product record in one commit.
func (s *Store) UpsertProduct(ctx context.Context, product Product) (Product, error) {
	pool, err := s.getPool()
	if err != nil {
		return Product{}, err
	}

	row := pool.QueryRow(ctx, upsertProductSQL,
		product.ProductID,
		product.URL,
		product.Name,
		decimalString(product.CurrentPrice),
		decimalString(product.PreviousPrice),
		product.LastCheck,
	)

	saved, scanErr := scanProduct(row)
	if scanErr != nil {
		return Product{}, fmt.Errorf("upsert product: %w", scanErr)
	}
	return saved, nil
}

// GetProduct fetches a product by canonical id.
func (s *Store) GetProduct(ctx context.Context, productID string) (Product, error) {
	pool, err := s.getPool()
	if err != nil {
		return Product{}, err
	}

	product, scanErr := scanProduct(pool.QueryRow(ctx, getProductSQL, productID))
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("get product: %w", scanErr)
	}
	return product, nil
}

// ListProducts returns all tracked products in stable id order.
func (s *Store) ListProducts(ctx context.Context) ([]Product, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listProductsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list products: %w", queryErr)
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		product, scanErr := scanProduct(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		products = append(products, product)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return products, nil
}

// DeleteProductIfOrphan removes a product only when no subscriptions reference
// it, reporting whether a row was deleted.
func (s *Store) DeleteProductIfOrphan(ctx context.Context, productRowID int64) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	tag, execErr := pool.Exec(ctx, deleteOrphanProductSQL, productRowID)
	if execErr != nil {
		return false, fmt.Errorf("delete orphan product: %w", execErr)
	}
	return tag.RowsAffected() > 0, nil
}

// ListSubscriberProducts returns the products a chat is subscribed to.
func (s *Store) ListSubscriberProducts(ctx context.Context, chatID string) ([]Product, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSubscriberProductsSQL, chatID)
	if queryErr != nil {
		return nil, fmt.Errorf("list subscriber products: %w", queryErr)
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		product, scanErr := scanProduct(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		products = append(products, product)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return products, nil
}

// UpsertSubscriber creates or refreshes a subscriber by chat id.
func (s *Store) UpsertSubscriber(ctx context.Context, chatID, username string) (Subscriber, error) {
	pool, err := s.getPool()
	if err != nil {
		return Subscriber{}, err
	}

	var sub Subscriber
	row := pool.QueryRow(ctx, upsertSubscriberSQL, chatID, username)
	if scanErr := row.Scan(&sub.ID, &sub.ChatID, &sub.Username, &sub.CreatedAt); scanErr != nil {
		return Subscriber{}, fmt.Errorf("upsert subscriber: %w", scanErr)
	}
	return sub, nil
}

// GetSubscriber fetches a subscriber by chat id.
func (s *Store) GetSubscriber(ctx context.Context, chatID string) (Subscriber, error) {
	pool, err := s.getPool()
	if err != nil {
		return Subscriber{}, err
	}

	var sub Subscriber
	row := pool.QueryRow(ctx, getSubscriberSQL, chatID)
	if scanErr := row.Scan(&sub.ID, &sub.ChatID, &sub.Username, &sub.CreatedAt); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return Subscriber{}, ErrNotFound
		}
		return Subscriber{}, fmt.Errorf("get subscriber: %w", scanErr)
	}
	return sub, nil
}

// Subscribe links a subscriber to a product; already-linked pairs are a no-op.
func (s *Store) Subscribe(ctx context.Context, subscriberID, productRowID int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, subscribeSQL, subscriberID, productRowID); execErr != nil {
		return fmt.Errorf("subscribe: %w", execErr)
	}
	return nil
}

// Unsubscribe removes a subscriber's link to a product, reporting whether a
// subscription existed.
func (s *Store) Unsubscribe(ctx context.Context, subscriberID, productRowID int64) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	tag, execErr := pool.Exec(ctx, unsubscribeSQL, subscriberID, productRowID)
	if execErr != nil {
		return false, fmt.Errorf("unsubscribe: %w", execErr)
	}
	return tag.RowsAffected() > 0, nil
}

// ListProductSubscribers returns every subscriber of a product.
func (s *Store) ListProductSubscribers(ctx context.Context, productID string) ([]Subscriber, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listProductSubscribersSQL, productID)
	if queryErr != nil {
		return nil, fmt.Errorf("list subscribers: %w", queryErr)
	}
	defer rows.Close()

	subs := make([]Subscriber, 0)
	for rows.Next() {
		var sub Subscriber
		if scanErr := rows.Scan(&sub.ID, &sub.ChatID, &sub.Username, &sub.CreatedAt); scanErr != nil {
			return nil, scanErr
		}
		subs = append(subs, sub)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return subs, nil
}

// InsertPricePoint appends one observation to the price history.
func (s *Store) InsertPricePoint(ctx context.Context, point PricePoint) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, insertPricePointSQL,
		point.ProductID,
		point.Price.String(),
		point.Source,
		point.ObservedAt,
	)
	if execErr != nil {
		return fmt.Errorf("insert price point: %w", execErr)
	}
	return nil
}

// ListPricePointsBetween lists history within a time window.
func (s *Store) ListPricePointsBetween(ctx context.Context, productID string, from, to time.Time) ([]PricePoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPricePointsBetweenSQL, productID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list price points: %w", queryErr)
	}
	defer rows.Close()

	return collectPricePoints(rows)
}

// ListRecentPricePoints lists the most recent history entries, newest first.
func (s *Store) ListRecentPricePoints(ctx context.Context, productID string, limit int) ([]PricePoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentPricePointsSQL, productID, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent price points: %w", queryErr)
	}
	defer rows.Close()

	return collectPricePoints(rows)
}

func collectPricePoints(rows pgx.Rows) ([]PricePoint, error) {
	points := make([]PricePoint, 0)
	for rows.Next() {
		var point PricePoint
		var priceStr string
		if scanErr := rows.Scan(&point.ID, &point.ProductID, &priceStr, &point.Source, &point.ObservedAt); scanErr != nil {
			return nil, scanErr
		}
		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse price point: %w", convErr)
		}
		point.Price = price
		points = append(points, point)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return points, nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var product Product
	var current, previous *string
	if err := row.Scan(
		&product.ID,
		&product.ProductID,
		&product.URL,
		&product.Name,
		&current,
		&previous,
		&product.LastCheck,
		&product.CreatedAt,
	); err != nil {
		return Product{}, err
	}

	var convErr error
	if product.CurrentPrice, convErr = parseNullableDecimal(current); convErr != nil {
		return Product{}, convErr
	}
	if product.PreviousPrice, convErr = parseNullableDecimal(previous); convErr != nil {
		return Product{}, convErr
	}
	return product, nil
}

func parseNullableDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("parse stored price: %w", err)
	}
	return &d, nil
}

func decimalString(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

var (
	_ ProductStore    = (*Store)(nil)
	_ SubscriberStore = (*Store)(nil)
	_ HistoryStore    = (*Store)(nil)
	_ AdvisoryLocker  = (*Store)(nil)
)
