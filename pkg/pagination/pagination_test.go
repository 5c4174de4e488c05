package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTake(t *testing.T) {
	assert.Equal(t, DefaultTake, NormalizeTake(0, DefaultTake))
	assert.Equal(t, DefaultAuditTake, NormalizeTake(-3, DefaultAuditTake))
	assert.Equal(t, MaxTake, NormalizeTake(500, DefaultTake))
	assert.Equal(t, 7, NormalizeTake(7, DefaultTake))
	assert.Equal(t, DefaultTake, NormalizeTake(0, 1000))
}

func TestParamsNormalize(t *testing.T) {
	got := Params{Take: 0, Skip: -10}.Normalize(DefaultAuditTake)
	assert.Equal(t, Params{Take: DefaultAuditTake, Skip: 0}, got)
}
