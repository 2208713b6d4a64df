package symbol

type OandaConverter struct{}

// ToExchange renders EURUSD as EUR_USD and XAUUSD-style metals as XAU_USD.
func (OandaConverter) ToExchange(canonical string) string {
	clean := Canonical(canonical)
	switch {
	case clean == "":
		return ""
	case len(clean) == 6:
		return clean[:3] + "_" + clean[3:]
	case len(clean) == 7:
		return clean[:4] + "_" + clean[4:]
	case len(clean) < 2:
		return clean
	default:
		mid := len(clean) / 2
		return clean[:mid] + "_" + clean[mid:]
	}
}

func (OandaConverter) FromExchange(raw string) string {
	return Canonical(raw)
}

var Oanda = OandaConverter{}
