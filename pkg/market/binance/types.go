package market

// Kline represents a single candlestick.
type Kline struct {
	Symbol    string
	OpenTime  int64 // ms
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime int64 // ms
}

// Ticker holds lightweight price info.
type Ticker struct {
	Symbol string
	Price  float64
	Time   int64
}

// Closes extracts the close prices of klines in order.
func Closes(klines []Kline) []float64 {
	out := make([]float64, 0, len(klines))
	for _, k := range klines {
		out = append(out, k.Close)
	}
	return out
}
