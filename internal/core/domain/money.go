package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an exact decimal amount in a single currency.
type Money struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currencyCode"`
}

// ParseMoney parses a decimal string such as "10.00" into Money.
func ParseMoney(amount, currencyCode string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return Money{Amount: d, CurrencyCode: strings.ToUpper(strings.TrimSpace(currencyCode))}, nil
}

// MustParseMoney is ParseMoney for literals; it panics on malformed input.
func MustParseMoney(amount, currencyCode string) Money {
	m, err := ParseMoney(amount, currencyCode)
	if err != nil {
		panic(err)
	}
	return m
}

// Mul returns the amount multiplied by an integer quantity.
func (m Money) Mul(quantity int) Money {
	return Money{Amount: m.Amount.Mul(decimal.NewFromInt(int64(quantity))), CurrencyCode: m.CurrencyCode}
}

// AmountString formats the amount with at least two fractional digits,
// keeping any extra precision the source amount carried.
func (m Money) AmountString() string {
	places := int32(2)
	if exp := -m.Amount.Exponent(); exp > places {
		places = exp
	}
	return m.Amount.StringFixed(places)
}

func (m Money) String() string {
	return m.AmountString() + " " + m.CurrencyCode
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero() && m.CurrencyCode == ""
}

type moneyJSON struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currencyCode"`
}

// MarshalJSON writes the amount as a string with its fractional digits
// intact ("25.50", not "25.5").
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount       string `json:"amount"`
		CurrencyCode string `json:"currencyCode"`
	}{m.AmountString(), m.CurrencyCode})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Amount = raw.Amount
	m.CurrencyCode = raw.CurrencyCode
	return nil
}
