package upstream

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestForecastOneEntryPerDay(t *testing.T) {
	t.Parallel()

	g := &fakeGetter{bodies: map[string]string{
		"w/weather?": `{"sys":{"sunrise":1700028000,"sunset":1700061000}}`,
		"w/forecast?": `{"list":[
			{"dt":1700038800,"main":{"temp":9.6,"temp_min":8.4,"temp_max":10.5},"weather":[{"main":"Clouds","description":"broken clouds"}]},
			{"dt":1700049600,"main":{"temp":11,"temp_min":11,"temp_max":11},"weather":[{"main":"Rain","description":"light rain"}]},
			{"dt":1700125200,"main":{"temp":-0.4,"temp_min":-2.6,"temp_max":1},"weather":[{"main":"Snow","description":"snow"}]}
		]}`,
	}}
	w := NewWeather(g, WeatherConfig{BaseURL: "w", APIKey: "k", Lat: "48.8566", Lon: "2.3522", Location: time.UTC})
	w.now = func() time.Time { return time.Date(2023, 11, 15, 9, 0, 0, 0, time.UTC) }

	f, err := w.Forecast(context.Background())
	require.NoError(t, err)
	require.Equal(t, "06:00", f.Sunrise)
	require.Equal(t, "15:10", f.Sunset)
	require.Len(t, f.Forecast, 2)
	require.Equal(t, DailyForecast{
		Date:        "2023-11-15",
		CurrentTemp: 10,
		MinTemp:     8,
		MaxTemp:     11,
		Status:      "Clouds",
		Description: "broken clouds",
		Timestamp:   "2023-11-15T09:00:00Z",
	}, f.Forecast[0])
	require.Equal(t, "2023-11-16", f.Forecast[1].Date)
	require.Equal(t, 0, f.Forecast[1].CurrentTemp)
	require.Equal(t, -3, f.Forecast[1].MinTemp)

	u, err := url.Parse(g.urls[0])
	require.NoError(t, err)
	require.Equal(t, "metric", u.Query().Get("units"))
	require.Equal(t, "48.8566", u.Query().Get("lat"))
}

func TestForecastCapsAtEightDays(t *testing.T) {
	t.Parallel()

	items := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		dt := time.Date(2024, 1, 1+i, 12, 0, 0, 0, time.UTC).Unix()
		items = append(items, `{"dt":`+strconv.FormatInt(dt, 10)+`}`)
	}
	g := &fakeGetter{bodies: map[string]string{
		"w/weather?":  `{"sys":{}}`,
		"w/forecast?": `{"list":[` + strings.Join(items, ",") + `]}`,
	}}
	f, err := NewWeather(g, WeatherConfig{BaseURL: "w", APIKey: "k", Location: time.UTC}).Forecast(context.Background())
	require.NoError(t, err)
	require.Len(t, f.Forecast, 8)
	require.Equal(t, "2024-01-08", f.Forecast[7].Date)
}

func TestForecastRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewWeather(&fakeGetter{}, WeatherConfig{}).Forecast(context.Background())
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestForecastUpstreamFailure(t *testing.T) {
	t.Parallel()

	g := &fakeGetter{errs: map[string]error{"w/": errors.New("401 unauthorized")}}
	_, err := NewWeather(g, WeatherConfig{BaseURL: "w", APIKey: "bad"}).Forecast(context.Background())
	require.ErrorIs(t, err, ErrUpstream)
}
