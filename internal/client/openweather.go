package client

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/kjstillabower/weather-dashboard-api/internal/clock"
	"github.com/kjstillabower/weather-dashboard-api/internal/models"
)

// DefaultOpenWeatherURL is the OpenWeather 2.5 API root; /weather and /forecast are appended.
const DefaultOpenWeatherURL = "https://api.openweathermap.org/data/2.5"

const (
	forecastStride = 8 // 3-hour steps per day
	forecastDays   = 5
)

// OpenWeatherClient fetches current weather and the 5-day forecast.
type OpenWeatherClient struct {
	apiKey  string
	baseURL string
	caller  *caller
	locale  clock.Locale
	zone    *time.Location
}

var _ WeatherProvider = (*OpenWeatherClient)(nil)

// NewOpenWeatherClient builds a client. Forecast dates are rendered with
// locale in zone (nil zone means time.Local).
func NewOpenWeatherClient(apiKey, baseURL string, locale clock.Locale, zone *time.Location, opts Options) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if baseURL == "" {
		baseURL = DefaultOpenWeatherURL
	}
	if zone == nil {
		zone = time.Local
	}
	return &OpenWeatherClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		caller:  newCaller(ProviderOpenWeather, opts),
		locale:  locale,
		zone:    zone,
	}, nil
}

type owCondition struct {
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type currentResponse struct {
	Main *struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Weather []owCondition `json:"weather"`
	Wind    *struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Name string `json:"name"`
	Sys  *struct {
		Country string `json:"country"`
	} `json:"sys"`
}

// check rejects bodies that decode but lack the fields a record is built from.
func (r *currentResponse) check() error {
	switch {
	case r.Main == nil:
		return errMissingField("main")
	case len(r.Weather) == 0:
		return errMissingField("weather[0]")
	case r.Wind == nil:
		return errMissingField("wind")
	case r.Sys == nil:
		return errMissingField("sys")
	}
	return nil
}

type forecastResponse struct {
	List *[]forecastItem `json:"list"`
}

type forecastItem struct {
	Dt   int64 `json:"dt"`
	Main *struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Weather []owCondition `json:"weather"`
}

func errMissingField(name string) error {
	return fmt.Errorf("parse response: missing %s", name)
}

// Current returns conditions at coords in metric units.
func (c *OpenWeatherClient) Current(ctx context.Context, coords models.Coordinates) (models.WeatherRecord, error) {
	var resp currentResponse
	err := c.caller.get(ctx, c.endpoint("weather", coords), func(body []byte) error {
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		return resp.check()
	})
	if err != nil {
		return models.WeatherRecord{}, fmt.Errorf("current weather %s: %w", coords, err)
	}
	return mapCurrent(resp), nil
}

// Forecast returns one entry per day sampled from the 3-hourly feed. A short
// feed yields fewer than five entries.
func (c *OpenWeatherClient) Forecast(ctx context.Context, coords models.Coordinates) ([]models.ForecastEntry, error) {
	var entries []models.ForecastEntry
	err := c.caller.get(ctx, c.endpoint("forecast", coords), func(body []byte) error {
		var resp forecastResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		if resp.List == nil {
			return errMissingField("list")
		}
		var err error
		entries, err = c.sampleDaily(*resp.List)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("forecast %s: %w", coords, err)
	}
	return entries, nil
}

func (c *OpenWeatherClient) endpoint(path string, coords models.Coordinates) string {
	params := url.Values{}
	params.Set("lat", coords.Lat)
	params.Set("lon", coords.Lon)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	return c.baseURL + "/" + path + "?" + params.Encode()
}

// sampleDaily takes every eighth entry. Only sampled entries must be complete.
func (c *OpenWeatherClient) sampleDaily(list []forecastItem) ([]models.ForecastEntry, error) {
	out := make([]models.ForecastEntry, 0, forecastDays)
	for i := 0; i < len(list) && len(out) < forecastDays; i += forecastStride {
		item := list[i]
		if item.Main == nil {
			return nil, errMissingField(fmt.Sprintf("list[%d].main", i))
		}
		if len(item.Weather) == 0 {
			return nil, errMissingField(fmt.Sprintf("list[%d].weather[0]", i))
		}
		out = append(out, models.ForecastEntry{
			Date:        c.locale.FormatDate(time.Unix(item.Dt, 0).In(c.zone)),
			Temperature: roundTemp(item.Main.Temp),
			Description: item.Weather[0].Description,
			Icon:        item.Weather[0].Icon,
		})
	}
	return out, nil
}

// mapCurrent expects a response that passed check.
func mapCurrent(resp currentResponse) models.WeatherRecord {
	cond := resp.Weather[0]
	return models.WeatherRecord{
		Temperature: roundTemp(resp.Main.Temp),
		Description: cond.Description,
		Humidity:    resp.Main.Humidity,
		WindSpeed:   resp.Wind.Speed,
		Icon:        cond.Icon,
		City:        resp.Name,
		Country:     resp.Sys.Country,
	}
}

// roundTemp rounds half up, so -2.5 becomes -2 and 2.5 becomes 3.
func roundTemp(v float64) int {
	return int(math.Floor(v + 0.5))
}
