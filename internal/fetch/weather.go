package fetch

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mfriman/daybrief/internal/digest"
)

const (
	weatherSource  = "api.openweathermap.org"
	openWeatherURL = "https://api.openweathermap.org/data/2.5"
)

// WeatherFetcher queries OpenWeather for current conditions and a
// five-day forecast.
type WeatherFetcher struct {
	location  string
	units     string
	apiKey    string
	apiKeyEnv string
	baseURL   string
	client    *http.Client
}

// NewWeatherFetcher binds the fetcher to a location. The API key is read
// from the named environment variable.
func NewWeatherFetcher(location, units, apiKeyEnv string) *WeatherFetcher {
	if units == "" {
		units = "imperial"
	}
	return &WeatherFetcher{
		location:  location,
		units:     units,
		apiKey:    os.Getenv(apiKeyEnv),
		apiKeyEnv: apiKeyEnv,
		baseURL:   openWeatherURL,
		client:    newHTTPClient(),
	}
}

func (f *WeatherFetcher) Domain() digest.Domain { return digest.DomainWeather }

// Fetch retrieves current conditions plus midday forecast samples.
func (f *WeatherFetcher) Fetch(ctx context.Context) (*digest.FetchResult, error) {
	if f.apiKey == "" {
		return nil, keyMissingError(weatherSource, f.apiKeyEnv)
	}

	params := url.Values{
		"q":     {f.location},
		"appid": {f.apiKey},
		"units": {f.units},
	}

	var current struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp      float64 `json:"temp"`
			FeelsLike float64 `json:"feels_like"`
			Humidity  int     `json:"humidity"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
	}
	if err := getJSON(ctx, f.client, weatherSource, f.baseURL+"/weather?"+params.Encode(), &current); err != nil {
		return nil, err
	}

	report := &digest.WeatherReport{
		Location:   f.location,
		TempF:      current.Main.Temp,
		FeelsLikeF: current.Main.FeelsLike,
		Humidity:   current.Main.Humidity,
		WindMph:    current.Wind.Speed,
	}
	if len(current.Weather) > 0 {
		report.Conditions = current.Weather[0].Description
	}

	// Forecast failures are not fatal: current conditions alone still
	// make a usable section.
	report.Forecast = f.fetchForecast(ctx, params)

	fetchedAt := time.Now().UTC()
	if current.Dt > 0 {
		fetchedAt = time.Unix(current.Dt, 0).UTC()
	}

	return &digest.FetchResult{
		Source:    weatherSource,
		FetchedAt: fetchedAt,
		Payload:   report,
	}, nil
}

func (f *WeatherFetcher) fetchForecast(ctx context.Context, params url.Values) []digest.ForecastDay {
	var forecast struct {
		List []struct {
			DtTxt string `json:"dt_txt"`
			Main  struct {
				Temp float64 `json:"temp"`
			} `json:"main"`
			Weather []struct {
				Description string `json:"description"`
			} `json:"weather"`
		} `json:"list"`
	}
	if err := getJSON(ctx, f.client, weatherSource, f.baseURL+"/forecast?"+params.Encode(), &forecast); err != nil {
		return nil
	}

	var days []digest.ForecastDay
	for _, entry := range forecast.List {
		// The 3-hourly list covers 5 days; keep the midday sample of each.
		if !strings.Contains(entry.DtTxt, "12:00:00") {
			continue
		}
		day := digest.ForecastDay{
			Date:  strings.SplitN(entry.DtTxt, " ", 2)[0],
			TempF: entry.Main.Temp,
		}
		if len(entry.Weather) > 0 {
			day.Conditions = entry.Weather[0].Description
		}
		days = append(days, day)
	}
	return days
}
