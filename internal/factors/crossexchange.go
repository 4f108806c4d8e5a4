package factors

// CrossExchangeResult carries the confluence score plus the raw
// agreement ratio the daily projection gates on.
type CrossExchangeResult struct {
	Result
	Agreement float64 `json:"agreement"`
	Bullish   int     `json:"bullish"`
	Bearish   int     `json:"bearish"`
	Count     int     `json:"count"`
}

// CrossExchangeConfluence classifies each venue's 1 h price change into
// a bias at the 0.3% boundary and scores how much of the venue set
// agrees. Below 70% agreement the daily projection vetoes.
func CrossExchangeConfluence(priceChanges map[string]float64) CrossExchangeResult {
	if len(priceChanges) == 0 {
		return CrossExchangeResult{Result: unavailable()}
	}
	bull, bear := 0, 0
	for _, change := range priceChanges {
		if change > 0.3 {
			bull++
		} else if change < -0.3 {
			bear++
		}
	}
	count := len(priceChanges)
	dominant := bull
	sign := 1.0
	if bear > bull {
		dominant = bear
		sign = -1
	}
	agreement := float64(dominant) / float64(count)

	var score float64
	signal := "MIXED"
	switch {
	case agreement >= 0.9:
		score, signal = sign*0.70, "STRONG_AGREEMENT"
	case agreement >= 0.7:
		score, signal = sign*0.40, "AGREEMENT"
	}
	return CrossExchangeResult{
		Result:    Result{Score: score, Signal: signal, Available: true},
		Agreement: agreement,
		Bullish:   bull,
		Bearish:   bear,
		Count:     count,
	}
}
