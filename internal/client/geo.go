package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/kjstillabower/weather-dashboard-api/internal/models"
)

// DefaultIPAPIURL is the ip-api.com JSON endpoint; the IP is appended as a path segment.
const DefaultIPAPIURL = "http://ip-api.com/json"

const ipAPIFields = "status,message,country,city,lat,lon,timezone"

// IPAPIClient looks up client IPs on ip-api.com.
type IPAPIClient struct {
	baseURL string
	caller  *caller
}

var _ GeoLocator = (*IPAPIClient)(nil)

func NewIPAPIClient(baseURL string, opts Options) *IPAPIClient {
	if baseURL == "" {
		baseURL = DefaultIPAPIURL
	}
	return &IPAPIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		caller:  newCaller(ProviderIPAPI, opts),
	}
}

type ipAPIResponse struct {
	Status   string  `json:"status"`
	Message  string  `json:"message"`
	Country  string  `json:"country"`
	City     string  `json:"city"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Timezone string  `json:"timezone"`
}

// Lookup resolves ip. ip-api answers 200 with status "fail" for private and
// reserved ranges; that is reported as ErrProviderFail.
func (c *IPAPIClient) Lookup(ctx context.Context, ip string) (models.LocationRecord, error) {
	u := c.baseURL + "/" + url.PathEscape(ip) + "?fields=" + ipAPIFields

	var resp ipAPIResponse
	err := c.caller.get(ctx, u, func(body []byte) error {
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		switch resp.Status {
		case "success":
		case "":
			return fmt.Errorf("parse response: missing status")
		default:
			return fmt.Errorf("%w: %s", ErrProviderFail, resp.Message)
		}
		return nil
	})
	if err != nil {
		return models.LocationRecord{}, fmt.Errorf("lookup %s: %w", ip, err)
	}
	return models.LocationRecord{
		City:     resp.City,
		Country:  resp.Country,
		Lat:      resp.Lat,
		Lon:      resp.Lon,
		Timezone: resp.Timezone,
	}, nil
}
