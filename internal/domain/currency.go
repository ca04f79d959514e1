package domain

// SupportedCurrencies lists the shop currencies the merchant API accepts.
var SupportedCurrencies = []string{
	"BTC", "USD", "AUD", "CAD", "CHF", "CNY", "DKK", "EUR", "GBP", "HKD",
	"JPY", "NZD", "PLN", "RUB", "SEK", "SGD", "THB", "NOK", "CZK",
}

func IsSupportedCurrency(code string) bool {
	for _, c := range SupportedCurrencies {
		if c == code {
			return true
		}
	}
	return false
}
