package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonical(t *testing.T) {
	assert.Equal(t, "BTCUSDT", Canonical("binance:btc-usdt"))
	assert.Equal(t, "EURUSD", Canonical("EUR_USD"))
	assert.Equal(t, "ETHUSDC", Canonical(" eth/usdc "))
	assert.Equal(t, "", Canonical(""))
}

func TestParse(t *testing.T) {
	assert.Equal(t, Symbol{Base: "BTC", Quote: "USDT"}, Parse("BTCUSDT"))
	assert.Equal(t, Symbol{Base: "EUR", Quote: "USD"}, Parse("EUR_USD"))
	assert.Equal(t, Symbol{Base: "GBP", Quote: "JPY"}, Parse("GBPJPY"))
	assert.Equal(t, Symbol{}, Parse("SPX"))
	assert.Equal(t, Symbol{Base: "SOL", Quote: "USDT"}, Parse("binance:SOL-USDT"))
	assert.Equal(t, Symbol{}, Parse(""))
}

func TestBlofinConverter(t *testing.T) {
	assert.Equal(t, "BTC-USDT", Blofin.ToExchange("BTCUSDT"))
	assert.Equal(t, "ETH-BTC", Blofin.ToExchange("ethbtc"))
	assert.Equal(t, "ABC-XYZ", Blofin.ToExchange("ABCXYZ"))
	assert.Equal(t, "BTCUSDT", Blofin.FromExchange("BTC-USDT"))
}

func TestOandaConverter(t *testing.T) {
	assert.Equal(t, "EUR_USD", Oanda.ToExchange("EURUSD"))
	assert.Equal(t, "XAGG_USD", Oanda.ToExchange("XAGGUSD"))
	assert.Equal(t, "SPX_500", Oanda.ToExchange("SPX500"))
	assert.Equal(t, "BTC_EUR", Oanda.ToExchange("BTC_EUR"))
	assert.Equal(t, "EURUSD", Oanda.FromExchange("EUR_USD"))
}

func TestForBroker(t *testing.T) {
	conv, ok := ForBroker("Blofin")
	assert.True(t, ok)
	assert.Equal(t, "BTC-USDT", conv.ToExchange("BTCUSDT"))

	conv, ok = ForBroker("oanda")
	assert.True(t, ok)
	assert.Equal(t, "EUR_USD", conv.ToExchange("EURUSD"))

	_, ok = ForBroker("kraken")
	assert.False(t, ok)
}

func TestDetectBroker(t *testing.T) {
	assert.Equal(t, "blofin", DetectBroker("BTCUSDT"))
	assert.Equal(t, "blofin", DetectBroker("BINANCE:ETHBTC"))
	assert.Equal(t, "oanda", DetectBroker("EURUSD"))
	assert.Equal(t, "oanda", DetectBroker("OANDA:EUR_USD"))
	assert.Equal(t, "", DetectBroker("SPX500"))
	assert.Equal(t, "", DetectBroker("BTCUSD"))
}
