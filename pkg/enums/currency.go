package enums

import "github.com/shopspring/decimal"

// Currency is the lower-case ISO 4217 code sent to the payment gateway.
type Currency string

const (
	CurrencyUSD Currency = "usd"
)

var currencies = []Currency{CurrencyUSD}

// minorExponent is the number of decimal places of each currency's minor unit.
var minorExponent = map[Currency]int32{
	CurrencyUSD: 2,
}

func (c Currency) String() string { return string(c) }

func (c Currency) IsValid() bool { return member(c, currencies) }

// ToMinorUnits converts amount to the currency's smallest unit, rounding half
// away from zero.
func (c Currency) ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(minorExponent[c]).Round(0).IntPart()
}

// ParseCurrency accepts any casing of a supported code.
func ParseCurrency(value string) (Currency, error) {
	return parse("currency", value, currencies)
}
