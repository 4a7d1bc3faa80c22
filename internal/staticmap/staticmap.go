// Package staticmap builds a non-interactive image of a day for clients that
// cannot host a live map surface.
package staticmap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/url"
	"strconv"
	"strings"

	"github.com/UnknownOlympus/waypoint/internal/models"
	"googlemaps.github.io/maps"
)

// Limits of the static image.
const (
	MaxMarkers    = 10
	MaxSide       = 640
	DefaultZoom   = 12
	DefaultWidth  = 800
	DefaultHeight = 420
)

const (
	staticMapURL = "https://maps.googleapis.com/maps/api/staticmap"
	searchURL    = "https://www.google.com/maps/search/"
	mapsHomeURL  = "https://www.google.com/maps"
)

var ErrMissingAPIKey = errors.New("static map API key is not configured")

// Options control the image size and zoom. Zero values use the defaults.
type Options struct {
	Width  int
	Height int
	Zoom   int
}

// Plan is the static rendering of one day.
type Plan struct {
	Request   *maps.StaticMapRequest
	Shown     []string // Shown lists the addresses drawn as markers.
	Omitted   int      // Omitted counts addresses left out of the image.
	SearchURL string   // SearchURL opens the first address in the maps web client.
}

// Build selects the first MaxMarkers non-blank addresses and sizes the image
// within MaxSide on each axis.
func Build(addresses []string, opts Options) Plan {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Zoom <= 0 {
		opts.Zoom = DefaultZoom
	}

	nonBlank := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if strings.TrimSpace(addr) != "" {
			nonBlank = append(nonBlank, addr)
		}
	}

	shown := nonBlank[:min(len(nonBlank), MaxMarkers)]

	markers := make([]maps.Marker, 0, len(shown))
	for _, addr := range shown {
		markers = append(markers, maps.Marker{LocationAddress: addr})
	}

	plan := Plan{
		Request: &maps.StaticMapRequest{
			Size:    fmt.Sprintf("%dx%d", min(opts.Width, MaxSide), min(opts.Height, MaxSide)),
			Zoom:    opts.Zoom,
			Markers: markers,
		},
		Shown:     shown,
		Omitted:   len(nonBlank) - len(shown),
		SearchURL: mapsHomeURL,
	}

	if len(shown) > 0 {
		query := url.Values{}
		query.Set("api", "1")
		query.Set("query", shown[0])
		plan.SearchURL = searchURL + "?" + query.Encode()
	}

	return plan
}

// Note returns the caption shown under a truncated image, empty when nothing was left out.
func (p Plan) Note() string {
	if p.Omitted == 0 {
		return ""
	}

	return fmt.Sprintf("Only showing first %d locations", len(p.Shown))
}

// URL returns the image address for direct embedding. The key is part of the URL.
func (p Plan) URL(apiKey string) (string, error) {
	if apiKey == "" {
		return "", ErrMissingAPIKey
	}

	query := url.Values{}
	for _, m := range p.Request.Markers {
		query.Add("markers", m.String())
	}
	if p.Request.Center != "" {
		query.Set("center", p.Request.Center)
	}
	query.Set("size", p.Request.Size)
	query.Set("zoom", strconv.Itoa(p.Request.Zoom))
	query.Set("key", apiKey)

	return staticMapURL + "?" + query.Encode(), nil
}

// Pin replaces the address markers with already resolved coordinates, so the
// image does not geocode the addresses a second time.
func (p Plan) Pin(points []models.Coordinates) Plan {
	if len(points) == 0 {
		return p
	}

	req := *p.Request
	location := make([]maps.LatLng, 0, len(points))
	for _, pt := range points[:min(len(points), MaxMarkers)] {
		location = append(location, maps.LatLng{Lat: pt.Latitude, Lng: pt.Longitude})
	}
	req.Markers = []maps.Marker{{Location: location}}
	p.Request = &req

	return p
}

// Renderer fetches static map images. *maps.Client satisfies it.
type Renderer interface {
	StaticMap(ctx context.Context, r *maps.StaticMapRequest) (image.Image, error)
}

// RenderPNG fetches the image of plan and encodes it as PNG.
func RenderPNG(ctx context.Context, renderer Renderer, plan Plan) ([]byte, error) {
	img, err := renderer.StaticMap(ctx, plan.Request)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch static map: %w", err)
	}

	var buf bytes.Buffer
	if err = png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode static map: %w", err)
	}

	return buf.Bytes(), nil
}
