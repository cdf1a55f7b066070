package types

import "time"

// Interval uses exchange kline notation.
type Interval string

const (
	OneMinute      Interval = "1m"
	ThreeMinutes   Interval = "3m"
	FiveMinutes    Interval = "5m"
	FifteenMinutes Interval = "15m"
	ThirtyMinutes  Interval = "30m"
	Hour           Interval = "1h"
	TwoHours       Interval = "2h"
	FourHours      Interval = "4h"
	Day            Interval = "1d"
	Week           Interval = "1w"
	Month          Interval = "1M"
)

var IntervalToTime = map[Interval]time.Duration{
	OneMinute:      time.Minute,
	ThreeMinutes:   time.Minute * 3,
	FiveMinutes:    time.Minute * 5,
	FifteenMinutes: time.Minute * 15,
	ThirtyMinutes:  time.Minute * 30,
	Hour:           time.Hour,
	TwoHours:       time.Hour * 2,
	FourHours:      time.Hour * 4,
	Day:            time.Hour * 24,
	Week:           time.Hour * 24 * 7,
}

var ConvertInterval = map[string]Interval{
	"1m":  OneMinute,
	"3m":  ThreeMinutes,
	"5m":  FiveMinutes,
	"15m": FifteenMinutes,
	"30m": ThirtyMinutes,
	"1h":  Hour,
	"2h":  TwoHours,
	"4h":  FourHours,
	"1d":  Day,
	"1w":  Week,
	"1M":  Month,
}
