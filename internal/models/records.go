package models

// LocationRecord is the normalized geolocation for a client IP.
type LocationRecord struct {
	City     string  `json:"city"`
	Country  string  `json:"country"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Timezone string  `json:"timezone"`
}

// WeatherRecord is the normalized current weather for a coordinate pair.
// Temperature is in °C, rounded to the nearest integer.
type WeatherRecord struct {
	Temperature int     `json:"temperature"`
	Description string  `json:"description"`
	Humidity    int     `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"`
	Icon        string  `json:"icon"`
	City        string  `json:"city"`
	Country     string  `json:"country"`
}

// ForecastEntry is one day of the 5-day forecast.
type ForecastEntry struct {
	Date        string `json:"date"`
	Temperature int    `json:"temperature"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// TimeRecord is computed per request and never cached.
type TimeRecord struct {
	UTC       string `json:"utc"`
	Local     string `json:"local"`
	Timestamp int64  `json:"timestamp"`
	Timezone  string `json:"timezone"`
}

// Coordinates is a lat/lon pair as received, used verbatim in cache keys.
type Coordinates struct {
	Lat string `yaml:"lat" json:"lat"`
	Lon string `yaml:"lon" json:"lon"`
}

func (c Coordinates) String() string {
	return c.Lat + "," + c.Lon
}
