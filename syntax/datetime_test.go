package syntax

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDatetimeRoundTrip(t *testing.T) {
	assert := assert.New(t)

	ts := time.Date(2022, 12, 1, 10, 30, 15, 123456789, time.FixedZone("WET", 3600))
	s := FormatDatetime(ts)
	assert.Equal("2022-12-01T09:30:15.123Z", s)

	back, err := ParseDatetime(s)
	assert.NoError(err)
	assert.True(NormalizeTime(ts).Equal(back))

	back, err = ParseDatetime("2022-12-01T10:30:15.123456+01:00")
	assert.NoError(err)
	assert.Equal(s, FormatDatetime(back))

	_, err = ParseDatetime("yesterday")
	assert.Error(err)
}
