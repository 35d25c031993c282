package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

const favoritesSchema = `
CREATE TABLE IF NOT EXISTS favorites (
	id                CHAR(36)       NOT NULL PRIMARY KEY,
	user_id           VARCHAR(128)   NOT NULL,
	product_id        VARCHAR(255)   NOT NULL,
	product_handle    VARCHAR(255)   NOT NULL DEFAULT '',
	product_title     VARCHAR(512)   NOT NULL DEFAULT '',
	product_price     DECIMAL(20, 4) NOT NULL DEFAULT 0,
	product_currency  CHAR(3)        NOT NULL DEFAULT '',
	product_image_url VARCHAR(1024)  NOT NULL DEFAULT '',
	created_at        DATETIME(6)    NOT NULL,
	UNIQUE KEY uq_favorites_user_product (user_id, product_id),
	KEY idx_favorites_user_created (user_id, created_at)
)`

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// EnsureSchema creates the favorites table if it does not exist.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, favoritesSchema); err != nil {
		return fmt.Errorf("create favorites table: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetFavorite(ctx context.Context, userID, productID string) (*domain.Favorite, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, user_id, product_id, product_handle, product_title,
		       product_price, product_currency, product_image_url, created_at
		FROM favorites WHERE user_id = ? AND product_id = ?`, userID, productID,
	)

	fav, err := scanFavorite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query favorite: %w", err)
	}
	return fav, nil
}

func (m *MySQLAdapter) InsertFavorite(ctx context.Context, f domain.Favorite) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO favorites (id, user_id, product_id, product_handle, product_title,
		                       product_price, product_currency, product_image_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.UserID, f.Product.ID, f.Product.Handle, f.Product.Title,
		f.Product.Price.Amount, f.Product.Price.CurrencyCode, f.Product.ImageURL, f.CreatedAt,
	)

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return port.ErrFavoriteExists
	}
	if err != nil {
		return fmt.Errorf("insert favorite: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) DeleteFavorite(ctx context.Context, userID, productID string) error {
	_, err := m.db.ExecContext(ctx, `
		DELETE FROM favorites WHERE user_id = ? AND product_id = ?`, userID, productID,
	)
	if err != nil {
		return fmt.Errorf("delete favorite: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) ListFavorites(ctx context.Context, userID string) ([]domain.Favorite, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, user_id, product_id, product_handle, product_title,
		       product_price, product_currency, product_image_url, created_at
		FROM favorites WHERE user_id = ?
		ORDER BY created_at DESC, id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query favorites: %w", err)
	}
	defer rows.Close()

	var favs []domain.Favorite
	for rows.Next() {
		fav, err := scanFavorite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		favs = append(favs, *fav)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return favs, nil
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFavorite(row rowScanner) (*domain.Favorite, error) {
	var (
		fav   domain.Favorite
		price decimal.Decimal
	)
	err := row.Scan(
		&fav.ID, &fav.UserID, &fav.Product.ID, &fav.Product.Handle, &fav.Product.Title,
		&price, &fav.Product.Price.CurrencyCode, &fav.Product.ImageURL, &fav.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	fav.Product.Price.Amount = trimScale(price)
	return &fav, nil
}

// trimScale drops the zero padding DECIMAL(20, 4) adds, so "10.00" reads
// back as 10 and formats as "10.00" again. Real sub-cent digits survive.
func trimScale(d decimal.Decimal) decimal.Decimal {
	return decimal.RequireFromString(d.String())
}
