// Package vehicle holds the latest flight-controller state that outbound
// messages are built from. The MAVLink link that feeds it is external.
package vehicle

import (
	"sort"
	"sync"
)

// Info is the identity block sent in ID messages.
type Info struct {
	VehicleType int
	FlightMode  int
	Armed       bool
	Flying      bool
	Autopilot   int
	Telemetry   bool
}

// GPS is the latest position fix.
type GPS struct {
	FixType     int
	Satellites  int
	Latitude    float64
	Longitude   float64
	AltitudeMSL float64
	AltitudeRel float64
	GroundSpeed float64
	Heading     float64
	HDOP        float64
}

// Nav is attitude and navigation controller output.
type Nav struct {
	Roll             float64
	Pitch            float64
	Yaw              float64
	NavRoll          float64
	NavPitch         float64
	TargetBearing    float64
	WaypointDistance float64
	AltitudeError    float64
}

// Power is the battery state.
type Power struct {
	Voltage   float64
	Current   float64
	Remaining int
	Consumed  float64
}

// Location is a geodetic point.
type Location struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// Param is one flight-controller parameter.
type Param struct {
	Name  string
	Value float64
	Type  int
	Index int
	Count int
}

// Waypoint is one mission item.
type Waypoint struct {
	Seq       int
	Command   int
	Frame     int
	Latitude  float64
	Longitude float64
	Altitude  float64
	Params    [4]float64
}

// Fence shapes.
const (
	FenceLinear   = 1
	FencePolygon  = 2
	FenceCylinder = 3
)

// GeoFence is a fence definition as received from a ground station.
type GeoFence struct {
	Name              string
	Type              int
	ShouldKeepOutside bool
	MaxDistance       float64
	Points            []Location
}

// State is the thread-safe snapshot holder. Getters return copies.
type State struct {
	mu        sync.RWMutex
	info      Info
	gps       GPS
	nav       Nav
	power     Power
	home      Location
	params    map[string]Param
	waypoints []Waypoint
	servos    []int
	fences    map[string]GeoFence
}

// NewState returns an empty State.
func NewState() *State {
	return &State{
		params: make(map[string]Param),
		fences: make(map[string]GeoFence),
	}
}

func (s *State) SetInfo(v Info) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = v
}

func (s *State) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

func (s *State) SetGPS(v GPS) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gps = v
}

func (s *State) GPS() GPS {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gps
}

func (s *State) SetNav(v Nav) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nav = v
}

func (s *State) Nav() Nav {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nav
}

func (s *State) SetPower(v Power) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.power = v
}

func (s *State) Power() Power {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.power
}

func (s *State) SetHome(v Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.home = v
}

func (s *State) Home() Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.home
}

// SetParam stores or replaces a parameter by name.
func (s *State) SetParam(p Param) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params[p.Name] = p
}

// Params returns all parameters ordered by index, then name.
func (s *State) Params() []Param {
	s.mu.RLock()
	out := make([]Param, 0, len(s.params))
	for _, p := range s.params {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *State) SetWaypoints(v []Waypoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waypoints = append([]Waypoint(nil), v...)
}

func (s *State) Waypoints() []Waypoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Waypoint(nil), s.waypoints...)
}

func (s *State) SetServos(v []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servos = append([]int(nil), v...)
}

func (s *State) Servos() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int(nil), s.servos...)
}

// PutFence stores or replaces a fence by name.
func (s *State) PutFence(f GeoFence) {
	f.Points = append([]Location(nil), f.Points...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fences[f.Name] = f
}

// Fence returns the named fence.
func (s *State) Fence(name string) (GeoFence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.fences[name]
	if ok {
		f.Points = append([]Location(nil), f.Points...)
	}
	return f, ok
}

// FenceNames returns the names of all stored fences, sorted.
func (s *State) FenceNames() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.fences))
	for n := range s.fences {
		names = append(names, n)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}

// RemoveFence deletes the named fence and reports whether it existed.
func (s *State) RemoveFence(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fences[name]
	delete(s.fences, name)
	return ok
}
