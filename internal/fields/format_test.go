package fields

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGrouped(t *testing.T) {
	assert.Equal(t, "5,000", Grouped(5000))
	assert.Equal(t, "250,000", Grouped(250000))
	assert.Equal(t, "42", Grouped(42))
	assert.Equal(t, "0", Grouped(0))
	assert.Equal(t, "1,234.5", Grouped(1234.5))
}

func TestCurrency(t *testing.T) {
	assert.Equal(t, "$250,000", Currency(250000))
	assert.Equal(t, "$1,000", Currency(999.6))
	assert.Equal(t, "$0", Currency(0))
	assert.Equal(t, "-$5,000", Currency(-5000))
}

func TestCurrencyCents(t *testing.T) {
	assert.Equal(t, "$52.50", CurrencyCents(52.5))
	assert.Equal(t, "$45.00", CurrencyCents(45))
}

func TestFixed2(t *testing.T) {
	assert.Equal(t, "0.80", Fixed2(0.8))
	assert.Equal(t, "1.00", Fixed2(1))
}

func TestUSDate(t *testing.T) {
	assert.Equal(t, "07/01/2026", USDate("2026-07-01"))
	assert.Equal(t, "07/01/2026", USDate("2026-07-01T00:00:00Z"))
	assert.Equal(t, "July 1, 2026", USDate("July 1, 2026"))
	assert.Equal(t, "07/01/2026", USDate("07/01/2026"))
	assert.Equal(t, "", USDate(""))
}
