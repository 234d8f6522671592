package upstream

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	collyfetcher "github.com/warka/warka/internal/fetcher/colly"
)

// DefaultWeatherURL is OpenWeather's 2.5 API root.
const DefaultWeatherURL = "https://api.openweathermap.org/data/2.5"

const maxForecastDays = 8

// WeatherConfig locates the forecast.
type WeatherConfig struct {
	BaseURL  string
	APIKey   string
	Lat      string
	Lon      string
	Units    string
	Location *time.Location
}

// DailyForecast is the first forecast entry of a calendar day.
type DailyForecast struct {
	Date        string `json:"date"`
	CurrentTemp int    `json:"current_temp"`
	MinTemp     int    `json:"min_temp"`
	MaxTemp     int    `json:"max_temp"`
	Status      string `json:"status"`
	Description string `json:"description"`
	Timestamp   string `json:"timestamp"`
}

// Forecast is the /weather payload.
type Forecast struct {
	Forecast []DailyForecast `json:"forecast"`
	Sunrise  string          `json:"sunrise"`
	Sunset   string          `json:"sunset"`
}

type owmCurrent struct {
	Sys struct {
		Sunrise int64 `json:"sunrise"`
		Sunset  int64 `json:"sunset"`
	} `json:"sys"`
}

type owmForecast struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp    float64 `json:"temp"`
			TempMin float64 `json:"temp_min"`
			TempMax float64 `json:"temp_max"`
		} `json:"main"`
		Weather []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"list"`
}

// Weather summarises the OpenWeather forecast per day.
type Weather struct {
	client Getter
	cfg    WeatherConfig
	now    func() time.Time
}

// NewWeather creates the service.
func NewWeather(client Getter, cfg WeatherConfig) *Weather {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultWeatherURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Units == "" {
		cfg.Units = "metric"
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Weather{client: client, cfg: cfg, now: time.Now}
}

// Forecast returns sunrise, sunset and one entry per day, at most eight.
func (w *Weather) Forecast(ctx context.Context) (Forecast, error) {
	if w.cfg.APIKey == "" {
		return Forecast{}, fmt.Errorf("%w: openweather api key is empty", ErrNotConfigured)
	}
	var current owmCurrent
	if err := w.client.GetJSON(ctx, collyfetcher.Request{URL: w.endpoint("weather")}, &current); err != nil {
		return Forecast{}, fmt.Errorf("%w: fetch weather data: %w", ErrUpstream, err)
	}
	var forecast owmForecast
	if err := w.client.GetJSON(ctx, collyfetcher.Request{URL: w.endpoint("forecast")}, &forecast); err != nil {
		return Forecast{}, fmt.Errorf("%w: fetch weather data: %w", ErrUpstream, err)
	}

	loc := w.cfg.Location
	stamp := w.now().In(loc).Format(time.RFC3339)
	out := Forecast{
		Forecast: []DailyForecast{},
		Sunrise:  time.Unix(current.Sys.Sunrise, 0).In(loc).Format("15:04"),
		Sunset:   time.Unix(current.Sys.Sunset, 0).In(loc).Format("15:04"),
	}
	var day string
	for _, item := range forecast.List {
		date := time.Unix(item.Dt, 0).In(loc).Format(time.DateOnly)
		if date == day {
			continue
		}
		day = date
		entry := DailyForecast{
			Date:        date,
			CurrentTemp: int(math.Round(item.Main.Temp)),
			MinTemp:     int(math.Round(item.Main.TempMin)),
			MaxTemp:     int(math.Round(item.Main.TempMax)),
			Timestamp:   stamp,
		}
		if len(item.Weather) > 0 {
			entry.Status = item.Weather[0].Main
			entry.Description = item.Weather[0].Description
		}
		out.Forecast = append(out.Forecast, entry)
		if len(out.Forecast) >= maxForecastDays {
			break
		}
	}
	return out, nil
}

func (w *Weather) endpoint(kind string) string {
	q := url.Values{}
	q.Set("lat", w.cfg.Lat)
	q.Set("lon", w.cfg.Lon)
	q.Set("appid", w.cfg.APIKey)
	q.Set("units", w.cfg.Units)
	return w.cfg.BaseURL + "/" + kind + "?" + q.Encode()
}
