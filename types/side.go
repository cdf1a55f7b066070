package types

type PositionSide string

const (
	SideFlat  PositionSide = "FLAT"
	SideLong  PositionSide = "LONG"
	SideShort PositionSide = "SHORT"
)

// Signal is the discrete instruction derived from one bar.
type Signal int

const (
	SignalSell Signal = -1
	SignalNone Signal = 0
	SignalBuy  Signal = 1
)

func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	default:
		return "NONE"
	}
}
