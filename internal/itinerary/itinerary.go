// Package itinerary decodes saved trip documents and extracts the locations
// of a single day.
package itinerary

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrNoDays      = errors.New("itinerary has no days")
	ErrDayNotFound = errors.New("itinerary day not found")
)

// Activity is one planned stop of a day.
type Activity struct {
	Name          string  `json:"name"           yaml:"name"`
	Description   string  `json:"description"    yaml:"description"`
	Location      string  `json:"location"       yaml:"location"`
	Duration      string  `json:"duration"       yaml:"duration"`
	EstimatedCost string  `json:"estimated_cost" yaml:"estimated_cost"`
	Category      string  `json:"category"       yaml:"category"`
	Rating        float64 `json:"rating"         yaml:"rating"`
}

// Day groups the activities planned for one date.
type Day struct {
	Day        int        `json:"day"        yaml:"day"`
	Date       string     `json:"date"       yaml:"date"`
	Theme      string     `json:"theme"      yaml:"theme"`
	Activities []Activity `json:"activities" yaml:"activities"`
}

// Itinerary is a complete trip plan.
type Itinerary struct {
	Destination string `json:"destination" yaml:"destination"`
	Duration    int    `json:"duration"    yaml:"duration"`
	Days        []Day  `json:"days"        yaml:"days"`
}

// envelope is the shape returned by the itinerary generator, which wraps the plan.
type envelope struct {
	Success   bool       `json:"success"   yaml:"success"`
	Itinerary *Itinerary `json:"itinerary" yaml:"itinerary"`
}

// Parse decodes a saved itinerary. Both the bare plan and the generator
// envelope ({"success": ..., "itinerary": {...}}) are accepted.
func Parse(data []byte) (*Itinerary, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode itinerary: %w", err)
	}
	if env.Itinerary != nil {
		return env.Itinerary, nil
	}

	var plan Itinerary
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to decode itinerary: %w", err)
	}

	return &plan, nil
}

// ParseYAML decodes an itinerary written by hand in YAML.
func ParseYAML(data []byte) (*Itinerary, error) {
	var env envelope
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode itinerary yaml: %w", err)
	}
	if env.Itinerary != nil {
		return env.Itinerary, nil
	}

	var plan Itinerary
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to decode itinerary yaml: %w", err)
	}

	return &plan, nil
}

// Load reads an itinerary file, choosing the decoder by extension.
func Load(path string) (*Itinerary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read itinerary file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return Parse(data)
	}
}

// DayAddresses returns the non-blank activity locations of the day at index,
// in activity order. Duplicates are kept.
func (it *Itinerary) DayAddresses(index int) ([]string, error) {
	if len(it.Days) == 0 {
		return nil, ErrNoDays
	}
	if index < 0 || index >= len(it.Days) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrDayNotFound, index, len(it.Days))
	}

	day := it.Days[index]
	addresses := make([]string, 0, len(day.Activities))
	for _, activity := range day.Activities {
		if strings.TrimSpace(activity.Location) == "" {
			continue
		}
		addresses = append(addresses, activity.Location)
	}

	return addresses, nil
}

// Label returns a short human title for the day at index.
func (it *Itinerary) Label(index int) string {
	if index < 0 || index >= len(it.Days) {
		return ""
	}

	day := it.Days[index]
	number := day.Day
	if number == 0 {
		number = index + 1
	}

	label := fmt.Sprintf("Day %d", number)
	if day.Theme != "" {
		label += ": " + day.Theme
	}

	return label
}
