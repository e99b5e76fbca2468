package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestUSD(t *testing.T) {
	testTable := []struct {
		name   string
		amount decimal.Decimal
		expect string
	}{
		{name: "zero", amount: decimal.Zero, expect: "$0.00"},
		{name: "thousands separator", amount: decimal.RequireFromString("10000"), expect: "$10,000.00"},
		{name: "rounds to cents", amount: decimal.RequireFromString("1234.565"), expect: "$1,234.57"},
		{name: "negative", amount: decimal.RequireFromString("-12.5"), expect: "-$12.50"},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Equal(t, testCase.expect, USD(testCase.amount))
		})
	}
}
