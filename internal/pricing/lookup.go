package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"tableside/internal/database"
	"tableside/internal/models"
)

var ErrMenuItemNotFound = fmt.Errorf("menu item %w", models.ErrNotFound)

// PriceLookup resolves the current catalog price of a menu item.
type PriceLookup interface {
	Price(ctx context.Context, menuItemID string) (decimal.Decimal, error)
}

// CatalogLookup reads prices from the menu_items catalog projection.
type CatalogLookup struct {
	db *database.DB
}

func NewCatalogLookup(db *database.DB) *CatalogLookup {
	return &CatalogLookup{db: db}
}

func (c *CatalogLookup) Price(ctx context.Context, menuItemID string) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := c.db.QueryRow(ctx, database.GetMenuItemPriceSQL, menuItemID).Scan(&price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%s: %w", menuItemID, ErrMenuItemNotFound)
		}
		return decimal.Zero, fmt.Errorf("lookup price: %w", database.MapError(err))
	}
	return price, nil
}

// StaticPrices is an in-memory catalog. The zero value is empty and safe
// for concurrent use once populated through Set.
type StaticPrices struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

func NewStaticPrices(prices map[string]string) *StaticPrices {
	s := &StaticPrices{prices: make(map[string]decimal.Decimal, len(prices))}
	for id, p := range prices {
		s.prices[id] = decimal.RequireFromString(p)
	}
	return s
}

// Set changes the catalog price of an item.
func (s *StaticPrices) Set(menuItemID string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prices == nil {
		s.prices = make(map[string]decimal.Decimal)
	}
	s.prices[menuItemID] = price
}

func (s *StaticPrices) Price(_ context.Context, menuItemID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[menuItemID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s: %w", menuItemID, ErrMenuItemNotFound)
	}
	return price, nil
}
