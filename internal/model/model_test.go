package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeOfDayOrdering(t *testing.T) {
	nine := NewTimeOfDay(9, 0)
	nineThirty := NewTimeOfDay(9, 30)
	ten := NewTimeOfDay(10, 0)

	assert.True(t, nine.Before(nineThirty))
	assert.True(t, ten.After(nineThirty))
	assert.Equal(t, -1, nine.Compare(ten))
	assert.Equal(t, 0, nine.Compare(NewTimeOfDay(9, 0)))
	assert.True(t, nine.Equal(NewTimeOfDay(9, 0)))
	assert.False(t, nine.Equal(nineThirty))
}

func TestInvalidTimeBehavesLikeNaN(t *testing.T) {
	nine := NewTimeOfDay(9, 0)

	assert.False(t, InvalidTime.Valid())
	assert.False(t, InvalidTime.Equal(InvalidTime))
	assert.False(t, InvalidTime.Equal(nine))
	assert.False(t, InvalidTime.Before(nine))
	assert.False(t, InvalidTime.After(nine))
	assert.False(t, nine.Before(InvalidTime))
	assert.False(t, nine.After(InvalidTime))
	assert.Equal(t, -1, InvalidTime.Hours())
	assert.Equal(t, "NaN", InvalidTime.String())
}

func TestNewTimeOfDayRange(t *testing.T) {
	assert.False(t, NewTimeOfDay(24, 0).Valid())
	assert.False(t, NewTimeOfDay(-1, 0).Valid())
	assert.False(t, NewTimeOfDay(10, 60).Valid())
	assert.True(t, NewTimeOfDay(0, 0).Valid())
	assert.True(t, NewTimeOfDay(23, 59).Valid())
}

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("8:05")
	require.NoError(t, err)
	assert.Equal(t, "08:05", got.String())

	for _, bad := range []string{"", "805", "ab:cd", "25:00", "10:75"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestTimeOfDayOf(t *testing.T) {
	loc := time.FixedZone("PST", -8*3600)
	tm := time.Date(2024, 1, 10, 13, 45, 0, 0, loc)
	assert.Equal(t, NewTimeOfDay(13, 45), TimeOfDayOf(tm))
	assert.False(t, TimeOfDayOf(time.Time{}).Valid())
}

func TestDateKey(t *testing.T) {
	d := DateOf(time.Date(2024, time.January, 10, 23, 30, 0, 0, time.UTC))
	assert.Equal(t, DateKey("2024-01-10"), d.Key())

	k, err := ParseDateKey("2024-1-10")
	assert.Error(t, err)
	assert.Empty(t, k)

	k, err = ParseDateKey("2024-01-10")
	require.NoError(t, err)
	back, err := k.Date()
	require.NoError(t, err)
	assert.Equal(t, d, back)
}

func TestRawBlockJSON(t *testing.T) {
	b := RawBlock{
		Title: "Math",
		Label: "3",
		Date:  Date{Year: 2024, Month: time.January, Day: 10},
		Meta:  DayMeta{Letter: "B"},
		Start: NewTimeOfDay(9, 0),
	}

	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Math","label":"3","date":"2024-01-10","meta":{"letter":"B"},"start":"09:00","end":null}`, string(data))

	var back RawBlock
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, b, back)
	assert.False(t, back.HasEnd())
}

func TestParseDivision(t *testing.T) {
	d, err := ParseDivision("US")
	require.NoError(t, err)
	assert.Equal(t, DivisionUpper, d)

	d, err = ParseDivision(" Middle ")
	require.NoError(t, err)
	assert.Equal(t, DivisionMiddle, d)

	_, err = ParseDivision("college")
	assert.Error(t, err)
}
