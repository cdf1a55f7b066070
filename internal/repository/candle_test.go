package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"meanrev/types"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var testInterval = types.OneMinute
var startTime = time.UnixMilli(0)
var endTime = startTime.Add(time.Minute * 5)

type mockCandlesRepository struct {
	sqlError error
	empty    bool
	lastArgs *aggregatesParams
}

func TestDatabase_FetchBars(t *testing.T) {
	type args struct {
		ticker   string
		interval types.Interval
		start    time.Time
		end      time.Time
	}
	tests := []struct {
		name     string
		args     args
		want     []types.Candle
		sqlErr   error
		assetErr error
		empty    bool
		wantErr  error
	}{
		{"should throw ErrNoCandles", args{"DOGEUSDC", testInterval, startTime, endTime}, nil, nil, nil, true, ErrNoCandles},
		{"should throw ErrNoCandles on no rows", args{"DOGEUSDC", testInterval, startTime, endTime}, nil, pgx.ErrNoRows, nil, false, ErrNoCandles},
		{"should throw ErrIntervalNotSupported", args{"DOGEUSDC", types.Month, startTime, endTime}, nil, nil, nil, false, ErrIntervalNotSupported},
		{"should throw ErrAssetNotFound", args{"MISSING", testInterval, startTime, endTime}, nil, nil, pgx.ErrNoRows, false, ErrAssetNotFound},
		{"should return candles", args{"DOGEUSDC", testInterval, startTime, endTime}, mockCandles("DOGEUSDC", startTime, endTime), nil, nil, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &Database{
				assets: mockAssetsRepository{sqlError: tt.assetErr},
				candles: mockCandlesRepository{
					sqlError: tt.sqlErr,
					empty:    tt.empty,
				},
			}
			got, err := db.FetchBars(context.Background(), tt.args.ticker, tt.args.interval, tt.args.start, tt.args.end)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("FetchBars() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchBars() unexpected error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("FetchBars() len = %d, want %d", len(got), len(tt.want))
			}
			for i := 0; i < len(tt.want); i++ {
				if got[i].Ticker != tt.args.ticker {
					t.Errorf("FetchBars() %s ticker got = %v, want %v", got[i].Timestamp, got[i].Ticker, tt.args.ticker)
					break
				}
				if got[i].Interval != tt.args.interval {
					t.Errorf("FetchBars() %s interval got = %v, want %v", got[i].Timestamp, got[i].Interval, tt.want[i].Interval)
					break
				}
				if !got[i].High.Equal(tt.want[i].High) {
					t.Errorf("FetchBars() %s high got = %v, want %v", got[i].Timestamp, got[i].High, tt.want[i].High)
					break
				}
				if !got[i].Closed {
					t.Errorf("FetchBars() %s not closed", got[i].Timestamp)
					break
				}
			}
		})
	}
}

func TestDatabase_FetchBarsPassesBucket(t *testing.T) {
	repo := mockCandlesRepository{lastArgs: &aggregatesParams{}}
	db := &Database{assets: mockAssetsRepository{}, candles: repo}

	if _, err := db.FetchBars(context.Background(), "DOGEUSDC", types.FifteenMinutes, startTime, endTime); err != nil {
		t.Fatalf("FetchBars() error = %v", err)
	}
	if repo.lastArgs.TimeBucket != "15 minutes" || repo.lastArgs.AssetID != 1 {
		t.Fatalf("GetAggregates() args = %+v, want 15 minutes bucket for asset 1", *repo.lastArgs)
	}
}

func TestConvertCandles_MarksOpenBucket(t *testing.T) {
	now := startTime.Add(90 * time.Second)
	rows := []aggregateRow{{Bucket: startTime}, {Bucket: startTime.Add(time.Minute)}}

	got := convertCandles(rows, testInterval, "DOGEUSDC", now)
	if !got[0].Closed || got[1].Closed {
		t.Fatalf("convertCandles() closed = %v %v, want true false", got[0].Closed, got[1].Closed)
	}
}

func (m mockCandlesRepository) GetAggregates(_ context.Context, arg aggregatesParams) ([]aggregateRow, error) {
	if m.lastArgs != nil {
		*m.lastArgs = arg
	}
	if m.sqlError != nil {
		return []aggregateRow{}, m.sqlError
	}
	if m.empty {
		return nil, nil
	}
	var candles []aggregateRow
	i := arg.Starttime
	for i.Before(arg.Endtime) {
		candles = append(candles, aggregateRow{
			Bucket:  i,
			AssetID: arg.AssetID,
			Open:    decimal.NewFromInt(i.UnixMilli()),
			High:    decimal.NewFromInt(i.UnixMilli()),
			Low:     decimal.NewFromInt(i.UnixMilli()),
			Close:   decimal.NewFromInt(i.UnixMilli()),
			Volume:  decimal.NewFromInt(i.UnixMilli()),
		})
		i = i.Add(types.IntervalToTime[testInterval])
	}
	return candles, nil
}

type mockAssetsRepository struct {
	sqlError error
}

func (m mockAssetsRepository) GetAssetByTicker(_ context.Context, ticker string) (assetRow, error) {
	if m.sqlError != nil {
		return assetRow{}, m.sqlError
	}
	return assetRow{ID: 1, Ticker: ticker, Name: "Dogecoin"}, nil
}

func mockCandles(ticker string, start, end time.Time) []types.Candle {
	var candles []types.Candle
	i := start
	for i.Before(end) {
		candles = append(candles, types.Candle{
			Ticker:    ticker,
			Timestamp: i,
			Interval:  testInterval,
			Open:      decimal.NewFromInt(i.UnixMilli()),
			High:      decimal.NewFromInt(i.UnixMilli()),
			Low:       decimal.NewFromInt(i.UnixMilli()),
			Close:     decimal.NewFromInt(i.UnixMilli()),
			Volume:    decimal.NewFromInt(i.UnixMilli()),
		})
		i = i.Add(types.IntervalToTime[testInterval])
	}
	return candles
}

func TestSupportsInterval(t *testing.T) {
	tests := []struct {
		interval types.Interval
		want     bool
	}{
		{types.OneMinute, true},
		{types.ThreeMinutes, true},
		{types.TwoHours, true},
		{types.Week, true},
		{types.Month, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.interval), func(t *testing.T) {
			if got := SupportsInterval(tt.interval); got != tt.want {
				t.Fatalf("SupportsInterval(%s) = %v, want %v", tt.interval, got, tt.want)
			}
		})
	}
}
