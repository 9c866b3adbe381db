package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatUSD(t *testing.T) {
	cases := []struct {
		amount float64
		want   string
	}{
		{0, "$0.00"},
		{42.4, "$42.40"},
		{1234.5, "$1,234.50"},
		{1234567.89, "$1,234,567.89"},
		{-42.4, "$-42.40"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatUSD(tc.amount))
	}
}

func TestFormatOz(t *testing.T) {
	assert.Equal(t, "12.3 oz", FormatOz(12.34))
	assert.Equal(t, "0.0 oz", FormatOz(0))
}
