package symbol

import (
	"strings"
)

type Format string

const (
	FormatBlofin Format = "blofin"
	FormatOanda  Format = "oanda"
)

// Converter 在规范化品种与券商格式之间转换。
type Converter interface {
	ToExchange(canonical string) string

	FromExchange(raw string) string
}

type Symbol struct {
	Base  string
	Quote string
}

var cryptoQuotes = []string{"USDT", "USDC", "BUSD", "BTC", "ETH", "BNB"}

var fiatCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true,
	"CHF": true, "AUD": true, "CAD": true, "NZD": true,
}

// Canonical 去掉交易所前缀与分隔符：BINANCE:BTC-USDT -> BTCUSDT。
func Canonical(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[idx+1:]
	}
	return strings.NewReplacer("-", "", "_", "", "/", "").Replace(s)
}

// Parse splits a symbol into base and quote. Separators win, then a known
// crypto quote suffix, then a six-letter fiat pair. Anything else is Symbol{}.
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[idx+1:]
	}
	for _, sep := range []string{"/", "-", "_"} {
		if parts := strings.SplitN(s, sep, 2); len(parts) == 2 {
			return Symbol{
				Base:  strings.TrimSpace(parts[0]),
				Quote: strings.TrimSpace(parts[1]),
			}
		}
	}
	for _, quote := range cryptoQuotes {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{
				Base:  s[:len(s)-len(quote)],
				Quote: quote,
			}
		}
	}
	if len(s) == 6 && fiatCurrencies[s[:3]] && fiatCurrencies[s[3:]] {
		return Symbol{Base: s[:3], Quote: s[3:]}
	}
	return Symbol{}
}

// ForBroker returns the converter for a broker name.
func ForBroker(broker string) (Converter, bool) {
	switch strings.ToLower(strings.TrimSpace(broker)) {
	case string(FormatBlofin):
		return Blofin, true
	case string(FormatOanda):
		return Oanda, true
	default:
		return nil, false
	}
}

// DetectBroker guesses the broker from a symbol: crypto quotes map to blofin,
// six-letter fiat pairs to oanda, anything else is "".
func DetectBroker(s string) string {
	sym := Parse(s)
	switch {
	case sym.Base == "" || sym.Quote == "":
		return ""
	case fiatCurrencies[sym.Base] && fiatCurrencies[sym.Quote]:
		return string(FormatOanda)
	case isCryptoQuote(sym.Quote):
		return string(FormatBlofin)
	}
	return ""
}

func isCryptoQuote(q string) bool {
	for _, quote := range cryptoQuotes {
		if q == quote {
			return true
		}
	}
	return false
}
