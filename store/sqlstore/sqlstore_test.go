package sqlstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebindDollar(t *testing.T) {
	got := RebindDollar(`SELECT a FROM t WHERE x = ? AND y >= ? AND z <= ?`)
	assert.Equal(t, `SELECT a FROM t WHERE x = $1 AND y >= $2 AND z <= $3`, got)
	assert.Equal(t, `SELECT 1`, RebindDollar(`SELECT 1`))
}

func TestTimeFormat_SortsLexicographically(t *testing.T) {
	early := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	late := early.Add(1500 * time.Millisecond)

	assert.Less(t, formatTime(early), formatTime(late))
	assert.Len(t, formatTime(early), len(formatTime(late)))

	// Offsets are normalised to UTC
	paris := time.FixedZone("CET", 3600)
	assert.Equal(t, formatTime(early), formatTime(early.In(paris)))

	back, err := parseTime(formatTime(late))
	require.NoError(t, err)
	assert.True(t, back.Equal(late))
}
