package review

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"example.com/binance-pattern-signals/internal/kline"
	"example.com/binance-pattern-signals/internal/pattern"
)

// DefaultCandles is the number of klines included in a prompt.
const DefaultCandles = 120

const promptTemplate = `你是一个严格基于技术面的专业交易分析师（只使用下面给出的 K 线数据和信号），不要引入外部基本面或新闻因素。
同时你的交易系统为追随趋势交易，当锤子线或者看涨吞没信号在支撑位或者上涨趋势结构中出现时做多，当倒锤子线或看跌吞没信号出现在阻力位或者下降趋势结构时做空。
信号JSON:
%s

最近%d根K线（列：timestamp,open,high,low,close,volume），时间按 UTC：
%s

请回答以下问题：
1) 信号是否满足交易系统: 是/否（如果是，请说明信号处于什么位置）；
2) 信号是否与趋势方向一致: Up/Down/Sideways（请简要说明）；
3) 信号是否值得入场操作: Recommend/Reject（请说明推荐或拒绝的理由）。
`

// BuildPrompt renders the signal and the last n klines into a review prompt.
func BuildPrompt(sig pattern.Signal, klines []kline.Kline, n int) (string, error) {
	if n <= 0 {
		n = DefaultCandles
	}
	if len(klines) > n {
		klines = klines[len(klines)-n:]
	}

	sigJSON, err := json.MarshalIndent(sig, "", "  ")
	if err != nil {
		return "", fmt.Errorf("review: encode signal: %w", err)
	}
	return fmt.Sprintf(promptTemplate, sigJSON, len(klines), klineTable(klines)), nil
}

func klineTable(klines []kline.Kline) string {
	var b strings.Builder
	b.WriteString("timestamp,open,high,low,close,volume\n")
	for _, k := range klines {
		b.WriteString(k.OpenTime.UTC().Format("2006-01-02 15:04:05"))
		for _, v := range []float64{k.Open, k.High, k.Low, k.Close, k.Volume} {
			b.WriteByte(',')
			b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
