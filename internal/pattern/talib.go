package pattern

import (
	talibcdl "github.com/iwat/talib-cdl-go"

	"example.com/binance-pattern-signals/internal/kline"
)

// talibShapes are classified through talib-cdl-go.
var talibShapes = map[SignalType]shapeFunc{
	SignalDojiStar:        talibShape(SignalDojiStar),
	SignalEveningStar:     talibShape(SignalEveningStar),
	SignalPiercing:        talibShape(SignalPiercing),
	SignalThreeInside:     talibShape(SignalThreeInside),
	SignalThreeOutside:    talibShape(SignalThreeOutside),
	SignalThreeLineStrike: talibShape(SignalThreeLineStrike),
	SignalThreeWhite:      talibShape(SignalThreeWhite),
	SignalThreeBlack:      talibShape(SignalThreeBlack),
	SignalBeltHold:        talibShape(SignalBeltHold),
	SignalClosingMarubozu: talibShape(SignalClosingMarubozu),
}

// toTalib converts klines [0, i] to talib-cdl-go SimpleSeries format so the
// forming kline never feeds the classification.
func toTalib(s *kline.Series, i int) talibcdl.SimpleSeries {
	return talibcdl.SimpleSeries{
		Opens:  s.Opens[:i+1],
		Highs:  s.Highs[:i+1],
		Lows:   s.Lows[:i+1],
		Closes: s.Closes[:i+1],
	}
}

func talibShape(typ SignalType) shapeFunc {
	return func(d *Detector, s *kline.Series, i int) (Direction, bool) {
		if i < 2 {
			return "", false
		}
		series := toTalib(s, i)

		// Fixed-direction patterns ignore the sign of the result.
		var results []int
		fixed := Direction("")
		switch typ {
		case SignalDojiStar:
			results = talibcdl.DojiStar(series)
		case SignalEveningStar:
			results = talibcdl.EveningStar(series, d.config.EveningStarPen)
			fixed = DirectionShort
		case SignalPiercing:
			results = talibcdl.Piercing(series)
			fixed = DirectionLong
		case SignalThreeInside:
			results = talibcdl.ThreeInside(series)
		case SignalThreeOutside:
			results = talibcdl.ThreeOutside(series)
		case SignalThreeLineStrike:
			results = talibcdl.ThreeLineStrike(series)
		case SignalThreeWhite:
			results = talibcdl.ThreeWhiteSoldiers(series)
			fixed = DirectionLong
		case SignalThreeBlack:
			results = talibcdl.ThreeBlackCrows(series)
			fixed = DirectionShort
		case SignalBeltHold:
			results = talibcdl.BeltHold(series)
		case SignalClosingMarubozu:
			results = talibcdl.ClosingMarubozu(series)
		}

		if len(results) <= i || results[i] == 0 {
			return "", false
		}
		if fixed != "" {
			return fixed, true
		}
		if results[i] > 0 {
			return DirectionLong, true
		}
		return DirectionShort, true
	}
}
