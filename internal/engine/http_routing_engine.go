// Package engine adapts an HTTP routing backend to the dispatch.Engine and
// dispatch.Fetcher interfaces. It cooperates with cancellation: the API
// call runs under the context the dispatcher passes in, and the engine
// checks the delegate before and after that single call (there are no
// retries).
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/qapac-nav/qapac-nav/internal/dispatch"
	"github.com/qapac-nav/qapac-nav/internal/geo"
	"github.com/qapac-nav/qapac-nav/internal/routecode"
	"github.com/rs/zerolog"
)

const (
	routesAPIURL = "https://routes.googleapis.com/directions/v2:computeRoutes"

	// straightLineSpeedMPS is the fallback speed in m/s (~30 km/h, typical urban speed).
	straightLineSpeedMPS = 30.0 / 3.6

	httpMaxIdleConns    = 10
	httpIdleConnTimeout = 30 * time.Second
)

// HTTPRoutingEngine implements dispatch.Engine against an HTTP directions
// API. It carries no per-request state; ClearState is a no-op because there
// is no cached routing graph to invalidate.
type HTTPRoutingEngine struct {
	name       string
	apiKey     string
	apiURL     string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewHTTPRoutingEngine builds an engine backed by apiURL (override in tests;
// pass "" to use the default Routes API v2 endpoint) with apiKey attached to
// every request.
func NewHTTPRoutingEngine(name, apiKey, apiURL string, log zerolog.Logger) *HTTPRoutingEngine {
	if apiURL == "" {
		apiURL = routesAPIURL
	}
	transport := &http.Transport{
		MaxIdleConns:        httpMaxIdleConns,
		MaxIdleConnsPerHost: httpMaxIdleConns,
		IdleConnTimeout:     httpIdleConnTimeout,
	}
	return &HTTPRoutingEngine{
		name:   name,
		apiKey: apiKey,
		apiURL: apiURL,
		httpClient: &http.Client{
			Transport: transport,
		},
		log: log,
	}
}

func (e *HTTPRoutingEngine) GetName() string { return e.name }

// ClearState is a no-op: the HTTP backend holds no local routing graph.
func (e *HTTPRoutingEngine) ClearState() {}

// CalculateRoute calls the directions API and fills route in place. It
// checks delegate.IsCancelled before issuing the HTTP call and once more
// after it returns, so a cancellation that lands during the network round
// trip is still honored before any callback would be scheduled. Failures
// that are clearly the caller's fault (missing checkpoints) are reported
// through the returned Code. A failed API call (transport error, non-200
// status, undecodable body) falls back to a straight-line estimate and
// still returns NoError; only a failure to build the request itself
// becomes an EngineFault panic.
func (e *HTTPRoutingEngine) CalculateRoute(ctx context.Context, cp geo.Checkpoints, direction geo.Point, adjustToPrev bool, delegate *dispatch.EngineDelegate, route *dispatch.Route) routecode.Code {
	if err := cp.Validate(); err != nil {
		return routecode.StartPointNotFound
	}
	if delegate.IsCancelled() {
		return routecode.Cancelled
	}

	originLat, originLon := geo.YToLat(cp.Start.Y), geo.XToLon(cp.Start.X)
	destLat, destLon := geo.YToLat(cp.Finish.Y), geo.XToLon(cp.Finish.X)

	delegate.ReportProgress(0.1)

	resp, err := e.callAPI(ctx, originLat, originLon, destLat, destLon)
	if err != nil {
		if ctx.Err() != nil || delegate.IsCancelled() {
			return routecode.Cancelled
		}
		e.log.Warn().Err(err).Str("router", e.name).Msg("directions API call failed, using straight-line fallback")
		resp = straightLineFallback(originLat, originLon, destLat, destLon)
	}

	if delegate.IsCancelled() {
		return routecode.Cancelled
	}

	delegate.ReportProgress(1.0)

	route.Polyline = resp.Polyline
	route.DistanceMeters = resp.DistanceM

	if resp.Polyline == "" && !resp.IsFallback {
		return routecode.RouteNotFound
	}
	return routecode.NoError
}

type directionsResponse struct {
	Polyline   string
	DistanceM  float64
	DurationS  int
	IsFallback bool
}

func (e *HTTPRoutingEngine) callAPI(ctx context.Context, originLat, originLon, destLat, destLon float64) (*directionsResponse, error) {
	body := routesAPIRequest{
		Origin:      routesAPIWaypoint{Location: routesAPILocation{LatLng: routesAPILatLng{Latitude: originLat, Longitude: originLon}}},
		Destination: routesAPIWaypoint{Location: routesAPILocation{LatLng: routesAPILatLng{Latitude: destLat, Longitude: destLon}}},
		TravelMode:  "DRIVE",
		RoutingPreference: "TRAFFIC_AWARE",
		LanguageCode:      "en-US",
		Units:             "METRIC",
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		panic(dispatch.EngineFault{Msg: fmt.Sprintf("engine: marshal request: %v", err)})
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiURL, bytes.NewReader(bodyBytes))
	if err != nil {
		panic(dispatch.EngineFault{Msg: fmt.Sprintf("engine: build request: %v", err)})
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", e.apiKey)
	httpReq.Header.Set("X-Goog-FieldMask", "routes.duration,routes.distanceMeters,routes.polyline.encodedPolyline")

	httpResp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("engine: http: %w", err)
	}
	defer httpResp.Body.Close()

	respBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("engine: read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("engine: status %d: %s", httpResp.StatusCode, string(respBytes))
	}

	var apiResp routesAPIResponse
	if err := json.Unmarshal(respBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("engine: unmarshal response: %w", err)
	}
	if len(apiResp.Routes) == 0 {
		return &directionsResponse{}, nil
	}

	route := apiResp.Routes[0]
	return &directionsResponse{
		Polyline:  route.Polyline.EncodedPolyline,
		DistanceM: float64(route.DistanceMeters),
	}, nil
}

func straightLineFallback(originLat, originLon, destLat, destLon float64) *directionsResponse {
	dist := haversineMeters(originLat, originLon, destLat, destLon)
	return &directionsResponse{
		DistanceM:  dist,
		IsFallback: true,
	}
}

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusM = 6_371_000.0
	const deg2rad = math.Pi / 180.0

	dLat := (lat2 - lat1) * deg2rad
	dLon := (lon2 - lon1) * deg2rad
	lat1r := lat1 * deg2rad
	lat2r := lat2 * deg2rad

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)
	a := sinDLat*sinDLat + math.Cos(lat1r)*math.Cos(lat2r)*sinDLon*sinDLon
	c := 2 * math.Asin(math.Sqrt(a))
	return earthRadiusM * c
}

type routesAPIRequest struct {
	Origin            routesAPIWaypoint `json:"origin"`
	Destination       routesAPIWaypoint `json:"destination"`
	TravelMode        string            `json:"travelMode"`
	RoutingPreference string            `json:"routingPreference"`
	LanguageCode      string            `json:"languageCode"`
	Units             string            `json:"units"`
}

type routesAPIWaypoint struct {
	Location routesAPILocation `json:"location"`
}

type routesAPILocation struct {
	LatLng routesAPILatLng `json:"latLng"`
}

type routesAPILatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type routesAPIResponse struct {
	Routes []routesAPIRoute `json:"routes"`
}

type routesAPIRoute struct {
	DistanceMeters int               `json:"distanceMeters"`
	Duration       string            `json:"duration"`
	Polyline       routesAPIPolyline `json:"polyline"`
}

type routesAPIPolyline struct {
	EncodedPolyline string `json:"encodedPolyline"`
}
