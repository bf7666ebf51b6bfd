// Package pattern implements the 123 swing breakout detector, its signal
// filter pipeline, the candlestick shape classifier and the canonical signal
// record they all normalise into.
package pattern

// Direction represents the trade direction of a signal.
type Direction string

const (
	DirectionLong  Direction = "long"  // 做多
	DirectionShort Direction = "short" // 做空
)

// SignalType identifies which detector produced a canonical signal.
type SignalType string

const (
	SignalBreakout123 SignalType = "123_breakout" // 123 突破

	// Shape classifier patterns
	SignalHammer           SignalType = "hammer"             // 锤子线
	SignalInvertedHammer   SignalType = "inverted_hammer"    // 倒锤子线
	SignalBullishEngulfing SignalType = "bullish_engulfing"  // 看涨吞没
	SignalBearishEngulfing SignalType = "bearish_engulfing"  // 看跌吞没
	SignalThreeBarReversal SignalType = "three_bar_reversal" // 三K反转

	// talib-cdl-go backed patterns
	SignalDojiStar        SignalType = "doji_star"         // 十字星线
	SignalEveningStar     SignalType = "evening_star"      // 暮星
	SignalPiercing        SignalType = "piercing"          // 刺透形态
	SignalThreeInside     SignalType = "three_inside"      // 三内部
	SignalThreeOutside    SignalType = "three_outside"     // 三外部
	SignalThreeLineStrike SignalType = "three_line_strike" // 三线打击
	SignalThreeWhite      SignalType = "three_white"       // 三白兵
	SignalThreeBlack      SignalType = "three_black"       // 三只乌鸦
	SignalBeltHold        SignalType = "belt_hold"         // 捉腰带线
	SignalClosingMarubozu SignalType = "closing_marubozu"  // 收盘光头光脚
)

// Mode restricts which side of the breakout detector emits signals.
type Mode string

const (
	ModeLong  Mode = "long"
	ModeShort Mode = "short"
	ModeBoth  Mode = "both"
)

func (m Mode) allows(d Direction) bool {
	switch m {
	case ModeLong:
		return d == DirectionLong
	case ModeShort:
		return d == DirectionShort
	default:
		return true
	}
}

// Reason tags attached to filtered breakout signals, in pipeline order.
const (
	ReasonBreakout   = "123-breakout"
	ReasonThreeBar   = "3bar-match"
	ReasonRSI        = "RSI-ok"
	ReasonVolumeHigh = "volume-high"
)

// DisplayNames maps signal types to Chinese names used in notifications.
var DisplayNames = map[SignalType]string{
	SignalBreakout123:      "123 突破",
	SignalHammer:           "锤子线",
	SignalInvertedHammer:   "倒锤子线",
	SignalBullishEngulfing: "看涨吞没",
	SignalBearishEngulfing: "看跌吞没",
	SignalThreeBarReversal: "三K反转",
	SignalDojiStar:         "十字星线",
	SignalEveningStar:      "暮星",
	SignalPiercing:         "刺透形态",
	SignalThreeInside:      "三内部",
	SignalThreeOutside:     "三外部",
	SignalThreeLineStrike:  "三线打击",
	SignalThreeWhite:       "三白兵",
	SignalThreeBlack:       "三只乌鸦",
	SignalBeltHold:         "捉腰带线",
	SignalClosingMarubozu:  "收盘光头光脚",
}
