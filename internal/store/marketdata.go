package store

import (
	"context"
	"database/sql"

	"nestegg/internal/models"
)

// MarketData reads research quotes from an external SQL database when one is
// configured (mysql or pgx). It satisfies the same lookup contract as the
// local stocks table.
type MarketData struct {
	db     *sql.DB
	driver string
}

func NewMarketData(db *sql.DB, driver string) *MarketData {
	return &MarketData{db: db, driver: driver}
}

func (m *MarketData) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *MarketData) GetStock(ctx context.Context, symbol string) (models.Stock, error) {
	q := `SELECT symbol,name,price,updated_at FROM stocks WHERE symbol=?`
	if m.driver == "pgx" {
		q = `SELECT symbol,name,price,updated_at FROM stocks WHERE symbol=$1`
	}
	var st models.Stock
	err := m.db.QueryRowContext(ctx, q, symbol).Scan(&st.Symbol, &st.Name, &st.Price, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.Stock{}, ErrNotFound
	}
	if err != nil {
		return models.Stock{}, err
	}
	return st, nil
}
