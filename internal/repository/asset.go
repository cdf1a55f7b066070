package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// assetID resolves a ticker to the id its candles are stored under.
func (db *Database) assetID(ctx context.Context, ticker string) (int32, error) {
	asset, err := db.assets.GetAssetByTicker(ctx, ticker)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("ticker %s %w", ticker, ErrAssetNotFound)
		}
		return 0, err
	}
	return asset.ID, nil
}
