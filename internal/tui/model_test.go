package tui

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/UnknownOlympus/waypoint/internal/itinerary"
	"github.com/UnknownOlympus/waypoint/internal/markers"
	"github.com/UnknownOlympus/waypoint/internal/models"
	"github.com/UnknownOlympus/waypoint/internal/service"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	mu        sync.Mutex
	submitted [][]string
	clicked   []string
	state     service.MapState
	submitErr error
}

func (f *fakeEngine) Submit(_ context.Context, addresses []string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.submitErr != nil {
		return 0, f.submitErr
	}
	f.submitted = append(f.submitted, addresses)
	f.state.Generation = uint64(len(f.submitted))

	return f.state.Generation, nil
}

func (f *fakeEngine) Click(_ context.Context, markerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.clicked = append(f.clicked, markerID)
	for _, entry := range f.state.Markers {
		if entry.ID == markerID {
			f.state.Popup = &service.Popup{MarkerID: markerID, Content: entry.Label}
			return nil
		}
	}

	return errors.New("unknown marker")
}

func (f *fakeEngine) State() service.MapState {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.state
}

func samplePlan() *itinerary.Itinerary {
	return &itinerary.Itinerary{
		Destination: "Paris",
		Days: []itinerary.Day{
			{Day: 1, Theme: "Museums", Activities: []itinerary.Activity{
				{Name: "Louvre", Location: "Louvre Museum, Paris"},
				{Name: "Walk", Location: ""},
				{Name: "Orsay", Location: "Musée d'Orsay, Paris"},
			}},
			{Day: 2, Theme: "Montmartre", Activities: []itinerary.Activity{
				{Name: "Basilica", Location: "Sacré-Cœur, Paris"},
			}},
		},
	}
}

func TestInit_IssuesFirstDay(t *testing.T) {
	engine := &fakeEngine{}
	m := New(context.Background(), engine, samplePlan())

	cmd := m.Init()

	require.NotNil(t, cmd)
	require.Len(t, engine.submitted, 1)
	assert.Equal(t, []string{"Louvre Museum, Paris", "Musée d'Orsay, Paris"}, engine.submitted[0])
	assert.Equal(t, uint64(1), m.generation)
}

func TestUpdate_SelectionChangeReissues(t *testing.T) {
	engine := &fakeEngine{}
	m := New(context.Background(), engine, samplePlan())
	m.Init()

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyDown})

	require.NotNil(t, cmd)
	require.Len(t, engine.submitted, 2)
	assert.Equal(t, []string{"Sacré-Cœur, Paris"}, engine.submitted[1])
	assert.Equal(t, 1, m.selected)
	assert.Equal(t, uint64(2), m.generation)
}

func TestUpdate_SameSelectionDoesNotReissue(t *testing.T) {
	engine := &fakeEngine{}
	m := New(context.Background(), engine, samplePlan())
	m.Init()

	m.Update(tea.KeyMsg{Type: tea.KeyUp})

	assert.Len(t, engine.submitted, 1)
}

func TestUpdate_Quit(t *testing.T) {
	m := New(context.Background(), &fakeEngine{}, samplePlan())

	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyCtrlC},
	} {
		_, cmd := m.Update(key)
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())
	}
}

func TestUpdate_RefreshFollowsPending(t *testing.T) {
	engine := &fakeEngine{state: service.MapState{Pending: true}}
	m := New(context.Background(), engine, samplePlan())

	_, cmd := m.Update(refreshMsg{})
	assert.NotNil(t, cmd, "keeps polling while the batch is pending")

	engine.state.Pending = false
	engine.state.Markers = []markers.Entry{{ID: "m1", Label: "Louvre Museum, Paris"}}
	_, cmd = m.Update(refreshMsg{})

	assert.Nil(t, cmd)
	assert.Len(t, m.state.Markers, 1)
}

func TestUpdate_DigitOpensPopup(t *testing.T) {
	engine := &fakeEngine{state: service.MapState{Markers: []markers.Entry{
		{ID: "m1", Label: "Louvre Museum, Paris", Coordinates: models.Coordinates{Latitude: 48.86, Longitude: 2.33}},
	}}}
	m := New(context.Background(), engine, samplePlan())
	m.Update(refreshMsg{})

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("1")})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("5")})

	assert.Equal(t, []string{"m1"}, engine.clicked)
	require.NotNil(t, m.state.Popup)
	assert.Contains(t, m.View(), "Louvre Museum, Paris")
}

func TestView_ShowsError(t *testing.T) {
	engine := &fakeEngine{submitErr: errors.New("map service credential is not configured")}
	m := New(context.Background(), engine, samplePlan())
	m.Init()

	view := m.View()

	assert.Contains(t, view, "credential is not configured")
	assert.Contains(t, view, "No markers")
}

func TestNew_EmptyPlan(t *testing.T) {
	engine := &fakeEngine{}
	m := New(context.Background(), engine, &itinerary.Itinerary{})

	assert.Nil(t, m.Init())
	m.Update(tea.KeyMsg{Type: tea.KeyDown})

	assert.Empty(t, engine.submitted)
	assert.Contains(t, m.View(), "Itinerary")
}
