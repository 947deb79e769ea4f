package binance

import (
	"net/http"
	"strconv"
)

// Public REST endpoints
const (
	spotPingPath         = "/api/v3/ping"
	spotTimePath         = "/api/v3/time"
	spotExchangeInfoPath = "/api/v3/exchangeInfo"
	spotTickerPricePath  = "/api/v3/ticker/price"
	spotDepthPath        = "/api/v3/depth"
	spotTradesPath       = "/api/v3/trades"
	spotKlinesPath       = "/api/v3/klines"

	futuresExchangeInfoPath = "/fapi/v1/exchangeInfo"
	futuresFundingRatePath  = "/fapi/v1/fundingRate"
	futuresPremiumIndexPath = "/fapi/v1/premiumIndex"
	futuresTicker24hrPath   = "/fapi/v1/ticker/24hr"
	futuresDepthPath        = "/fapi/v1/depth"
	futuresTradesPath       = "/fapi/v1/trades"
	futuresKlinesPath       = "/fapi/v1/klines"
)

const (
	// DefaultWeightPerMinute stays under the spot IP budget with room for other tools on the same IP
	DefaultWeightPerMinute = 1200
	DefaultWeightBurst     = 100
)

// requestWeight prices a public endpoint call in Binance request weight units.
// Depth and kline costs scale with the requested limit; unknown paths cost 1.
func requestWeight(req *http.Request) int {
	q := req.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	hasSymbol := q.Get("symbol") != ""

	switch req.URL.Path {
	case spotDepthPath:
		if limit == 0 {
			limit = 100
		}
		switch {
		case limit <= 100:
			return 5
		case limit <= 500:
			return 25
		case limit <= 1000:
			return 50
		default:
			return 250
		}
	case futuresDepthPath:
		if limit == 0 {
			limit = 500
		}
		switch {
		case limit <= 50:
			return 2
		case limit <= 100:
			return 5
		case limit <= 500:
			return 10
		default:
			return 20
		}
	case spotTradesPath:
		return 25
	case futuresTradesPath:
		return 5
	case spotKlinesPath:
		return 2
	case futuresKlinesPath:
		if limit == 0 {
			limit = 500
		}
		switch {
		case limit < 100:
			return 1
		case limit < 500:
			return 2
		case limit <= 1000:
			return 5
		default:
			return 10
		}
	case spotExchangeInfoPath:
		return 20
	case spotTickerPricePath:
		if hasSymbol {
			return 2
		}
		return 4
	case futuresPremiumIndexPath:
		if hasSymbol {
			return 1
		}
		return 10
	case futuresTicker24hrPath:
		if hasSymbol {
			return 1
		}
		return 40
	default:
		return 1
	}
}
