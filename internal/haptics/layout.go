package haptics

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Zone is a semantic body region on the vest.
type Zone int

const (
	FrontUpperLeft Zone = iota
	FrontUpperRight
	FrontLowerLeft
	FrontLowerRight
	BackUpperLeft
	BackUpperRight
	BackLowerLeft
	BackLowerRight
	AllFront
	AllBack
	Left
	Right
	Upper
	Lower
	All
)

// positions is the number of single-cell zones; they come first in the enum.
const positions = 8

var zoneNames = [...]string{
	"front_upper_left", "front_upper_right", "front_lower_left", "front_lower_right",
	"back_upper_left", "back_upper_right", "back_lower_left", "back_lower_right",
	"all_front", "all_back", "left", "right", "upper", "lower", "all",
}

func (z Zone) String() string {
	if z < 0 || int(z) >= len(zoneNames) {
		return fmt.Sprintf("zone(%d)", int(z))
	}
	return zoneNames[z]
}

// ParseZone accepts snake_case zone names ("front_upper_left", "all_back").
// "front" and "back" are accepted as aliases of all_front / all_back.
func ParseZone(s string) (Zone, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "front":
		return AllFront, nil
	case "back":
		return AllBack, nil
	}
	for i, n := range zoneNames {
		if n == name {
			return Zone(i), nil
		}
	}
	return 0, fmt.Errorf("unknown zone %q", s)
}

// composite zones expressed over single positions
var compositeZones = map[Zone][]Zone{
	AllFront: {FrontUpperLeft, FrontUpperRight, FrontLowerLeft, FrontLowerRight},
	AllBack:  {BackUpperLeft, BackUpperRight, BackLowerLeft, BackLowerRight},
	Left:     {FrontUpperLeft, FrontLowerLeft, BackUpperLeft, BackLowerLeft},
	Right:    {FrontUpperRight, FrontLowerRight, BackUpperRight, BackLowerRight},
	Upper:    {FrontUpperLeft, FrontUpperRight, BackUpperLeft, BackUpperRight},
	Lower:    {FrontLowerLeft, FrontLowerRight, BackLowerLeft, BackLowerRight},
	All: {FrontUpperLeft, FrontUpperRight, FrontLowerLeft, FrontLowerRight,
		BackUpperLeft, BackUpperRight, BackLowerLeft, BackLowerRight},
}

// Layout is a fixed bijection from the eight logical positions to physical
// cell indices.
type Layout struct {
	name  string
	cells [positions]int
}

// HardwareLayout was reverse engineered from the vest and is the default.
var HardwareLayout = Layout{
	name: "hardware",
	//       FUL FUR FLL FLR BUL BUR BLL BLR
	cells: [positions]int{2, 5, 3, 4, 1, 6, 0, 7},
}

// SequentialLayout numbers cells front to back, upper to lower, left to
// right. Older integrations addressed the vest this way.
var SequentialLayout = Layout{
	name:  "sequential",
	cells: [positions]int{0, 1, 2, 3, 4, 5, 6, 7},
}

func LayoutByName(name string) (Layout, error) {
	switch strings.ToLower(name) {
	case "", "hardware":
		return HardwareLayout, nil
	case "sequential", "legacy":
		return SequentialLayout, nil
	default:
		return Layout{}, fmt.Errorf("unknown cell layout %q", name)
	}
}

func (l Layout) Name() string { return l.name }

// Cell returns the physical index for a single-position zone.
func (l Layout) Cell(z Zone) (int, bool) {
	if z < 0 || z >= positions {
		return 0, false
	}
	return l.cells[z], true
}

// CellsFor returns the sorted, de-duplicated physical cells covering zones.
func (l Layout) CellsFor(zones ...Zone) []int {
	seen := make(map[int]struct{}, positions)
	for _, z := range zones {
		if c, ok := l.Cell(z); ok {
			seen[c] = struct{}{}
			continue
		}
		for _, p := range compositeZones[z] {
			seen[l.cells[p]] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}

// WrapAngle maps any angle into [0,360).
func WrapAngle(deg float64) float64 {
	a := math.Mod(deg, 360)
	if a < 0 {
		a += 360
	}
	return a
}

// Mirror converts an angle measured counter-clockwise (90 = left) into the
// clockwise convention used here (90 = right).
func Mirror(deg float64) float64 {
	return WrapAngle(360 - deg)
}

// ZonesForAngle buckets a clockwise angle (0 = front, 90 = right) into four
// sectors: front [315,45), right [45,135), back [135,225), left [225,315).
// Front hits land on the upper chest.
func ZonesForAngle(deg float64) []Zone {
	a := WrapAngle(deg)
	switch {
	case a >= 315 || a < 45:
		return []Zone{FrontUpperLeft, FrontUpperRight}
	case a < 135:
		return []Zone{Right}
	case a < 225:
		return []Zone{AllBack}
	default:
		return []Zone{Left}
	}
}

func (l Layout) CellsForAngle(deg float64) []int {
	return l.CellsFor(ZonesForAngle(deg)...)
}

var octantZones = [8][]Zone{
	{FrontUpperLeft, FrontUpperRight},
	{FrontUpperRight, FrontLowerRight},
	{Right},
	{BackUpperRight, BackLowerRight},
	{AllBack},
	{BackUpperLeft, BackLowerLeft},
	{Left},
	{FrontUpperLeft, FrontLowerLeft},
}

// ZonesForAngle8 uses eight 45 degree sectors centred on the compass points.
func ZonesForAngle8(deg float64) []Zone {
	idx := int(math.Floor(WrapAngle(deg+22.5)/45)) % 8
	return octantZones[idx]
}

func (l Layout) CellsForAngle8(deg float64) []int {
	return l.CellsFor(ZonesForAngle8(deg)...)
}
