package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "+5511987654321", Normalize("(11) 98765-4321", "BR"))
	assert.Equal(t, "+5511987654321", Normalize("+55 11 98765-4321", "US"))
	assert.Equal(t, "+5511987654321", Normalize("+55 11 98765-4321", ""))
	assert.Equal(t, "", Normalize("   ", "BR"))
	assert.Equal(t, "12", Normalize("1-2", "BR"))
}

func TestDigits(t *testing.T) {
	assert.Equal(t, "5511987", Digits("+55 (11) 987"))
	assert.Equal(t, "", Digits("none"))
}
