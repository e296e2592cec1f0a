package pii

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidNIP(t *testing.T) {
	assert.True(t, ValidNIP("1234563218"))

	// Any single-digit perturbation of the check digit must fail.
	assert.False(t, ValidNIP("1234563219"))
	assert.False(t, ValidNIP("1234563217"))
	assert.False(t, ValidNIP("1234563118"))

	assert.False(t, ValidNIP("123456321"))   // 9 digits
	assert.False(t, ValidNIP("12345632181")) // 11 digits
	assert.False(t, ValidNIP("12345632a8"))
	assert.False(t, ValidNIP(""))
}

func TestValidPESEL(t *testing.T) {
	assert.True(t, ValidPESEL("44051401359"))

	assert.False(t, ValidPESEL("44051401358"))
	assert.False(t, ValidPESEL("44051401459"))
	assert.False(t, ValidPESEL("4405140135"))
	assert.False(t, ValidPESEL("440514013599"))
}

func TestValidREGON(t *testing.T) {
	assert.True(t, ValidREGON("123456785"))
	assert.True(t, ValidREGON("12345678901235"))

	assert.False(t, ValidREGON("123456786"))
	assert.False(t, ValidREGON("12345678901234"))
	assert.False(t, ValidREGON("12345678"))   // 8 digits
	assert.False(t, ValidREGON("1234567850")) // 10 digits
}

func TestValidLuhn(t *testing.T) {
	assert.True(t, ValidLuhn("4111111111111111"))
	assert.True(t, ValidLuhn("4242424242424242"))

	assert.False(t, ValidLuhn("4111111111111112"))
	assert.False(t, ValidLuhn("1234567890123456"))
	assert.False(t, ValidLuhn("411111111111"))
}

func TestValidIBAN(t *testing.T) {
	assert.True(t, ValidIBAN("PL61109010140000071219812874"))
	assert.True(t, ValidIBAN("GB82WEST12345698765432"))
	assert.True(t, ValidIBAN("PL61 1090 1014 0000 0712 1981 2874"))
	assert.True(t, ValidIBAN("gb82west12345698765432"))

	assert.False(t, ValidIBAN("PL61109010140000071219812875"))
	assert.False(t, ValidIBAN("PL6110901014"))
	assert.False(t, ValidIBAN("XX00!!"))
	assert.False(t, ValidIBAN(""))
}
