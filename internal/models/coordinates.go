package models

// Coordinates represents a geographical point defined by its longitude and latitude.
type Coordinates struct {
	Longitude float64 `json:"lng"` // Longitude of the geographical point.
	Latitude  float64 `json:"lat"` // Latitude of the geographical point.
}

// Viewport is the visible region of a map surface: a center point and a zoom level.
type Viewport struct {
	Center Coordinates `json:"center"`
	Zoom   int         `json:"zoom"`
}
