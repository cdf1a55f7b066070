package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

type queries struct {
	db DBTX
}

func newQueries(db DBTX) *queries {
	return &queries{db: db}
}

type assetRow struct {
	ID     int32
	Ticker string
	Name   string
}

const getAssetByTicker = `
SELECT id, ticker, name
FROM assets
WHERE ticker = $1
`

func (q *queries) GetAssetByTicker(ctx context.Context, ticker string) (assetRow, error) {
	var a assetRow
	err := q.db.QueryRow(ctx, getAssetByTicker, ticker).Scan(&a.ID, &a.Ticker, &a.Name)
	return a, err
}

type aggregatesParams struct {
	TimeBucket string
	AssetID    int32
	Starttime  time.Time
	Endtime    time.Time
}

type aggregateRow struct {
	Bucket  time.Time
	AssetID int32
	Open    decimal.Decimal
	High    decimal.Decimal
	Low     decimal.Decimal
	Close   decimal.Decimal
	Volume  decimal.Decimal
}

const getAggregates = `
SELECT time_bucket($1::interval, timestamp) AS bucket,
       asset_id,
       first(open, timestamp) AS open,
       max(high)              AS high,
       min(low)               AS low,
       last(close, timestamp) AS close,
       sum(volume)            AS volume
FROM candles
WHERE asset_id = $2
  AND timestamp >= $3
  AND timestamp <= $4
GROUP BY bucket, asset_id
ORDER BY bucket
`

func (q *queries) GetAggregates(ctx context.Context, arg aggregatesParams) ([]aggregateRow, error) {
	rows, err := q.db.Query(ctx, getAggregates, arg.TimeBucket, arg.AssetID, arg.Starttime, arg.Endtime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []aggregateRow
	for rows.Next() {
		var i aggregateRow
		if err := rows.Scan(&i.Bucket, &i.AssetID, &i.Open, &i.High, &i.Low, &i.Close, &i.Volume); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type tradeRow struct {
	RunID      uuid.UUID
	Ticker     string
	Seq        int32
	Side       string
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	ReturnPct  float64
}

var tradeColumns = []string{
	"run_id", "ticker", "seq", "side",
	"entry_time", "exit_time", "entry_price", "exit_price", "return_pct",
}

func (q *queries) CopyTrades(ctx context.Context, trades []tradeRow) (int64, error) {
	return q.db.CopyFrom(ctx, pgx.Identifier{"backtest_trades"}, tradeColumns,
		pgx.CopyFromSlice(len(trades), func(i int) ([]any, error) {
			t := trades[i]
			return []any{
				t.RunID.String(), t.Ticker, t.Seq, t.Side,
				t.EntryTime, t.ExitTime, t.EntryPrice, t.ExitPrice, t.ReturnPct,
			}, nil
		}))
}

const createTradesTable = `
CREATE TABLE IF NOT EXISTS backtest_trades (
    run_id      uuid             NOT NULL,
    ticker      text             NOT NULL,
    seq         integer          NOT NULL,
    side        text             NOT NULL,
    entry_time  timestamptz      NOT NULL,
    exit_time   timestamptz      NOT NULL,
    entry_price numeric          NOT NULL,
    exit_price  numeric          NOT NULL,
    return_pct  double precision NOT NULL,
    PRIMARY KEY (run_id, seq)
)
`

func (q *queries) CreateTradesTable(ctx context.Context) error {
	_, err := q.db.Exec(ctx, createTradesTable)
	return err
}
