package haptics

import (
	"reflect"
	"testing"
)

func TestLayoutsAreBijections(t *testing.T) {
	for _, l := range []Layout{HardwareLayout, SequentialLayout} {
		seen := map[int]Zone{}
		for z := FrontUpperLeft; z <= BackLowerRight; z++ {
			cells := l.CellsFor(z)
			if len(cells) != 1 {
				t.Fatalf("%s: zone %s should map to one cell, got %v", l.Name(), z, cells)
			}
			if prev, dup := seen[cells[0]]; dup {
				t.Fatalf("%s: cell %d used by %s and %s", l.Name(), cells[0], prev, z)
			}
			seen[cells[0]] = z
		}

		front := l.CellsFor(AllFront)
		back := l.CellsFor(AllBack)
		all := l.CellsFor(All)
		for _, f := range front {
			for _, b := range back {
				if f == b {
					t.Fatalf("%s: front and back share cell %d", l.Name(), f)
				}
			}
		}
		if union := l.CellsFor(AllFront, AllBack); !reflect.DeepEqual(union, all) {
			t.Fatalf("%s: front ∪ back = %v, all = %v", l.Name(), union, all)
		}
		if !reflect.DeepEqual(all, []int{0, 1, 2, 3, 4, 5, 6, 7}) {
			t.Fatalf("%s: all should cover every cell, got %v", l.Name(), all)
		}
	}
}

func TestHardwareLayoutTable(t *testing.T) {
	want := map[Zone]int{
		FrontUpperLeft: 2, FrontUpperRight: 5, FrontLowerLeft: 3, FrontLowerRight: 4,
		BackUpperLeft: 1, BackUpperRight: 6, BackLowerLeft: 0, BackLowerRight: 7,
	}
	for z, c := range want {
		if got, _ := HardwareLayout.Cell(z); got != c {
			t.Fatalf("%s: expected cell %d, got %d", z, c, got)
		}
	}
	if got := HardwareLayout.CellsFor(AllFront); !reflect.DeepEqual(got, []int{2, 3, 4, 5}) {
		t.Fatalf("unexpected front cells %v", got)
	}
	if got := HardwareLayout.CellsFor(Left); !reflect.DeepEqual(got, []int{0, 1, 2, 3}) {
		t.Fatalf("unexpected left cells %v", got)
	}
}

func TestCellsForAngleBoundaries(t *testing.T) {
	l := HardwareLayout
	frontUpper := []int{2, 5}
	right := l.CellsFor(Right)
	back := l.CellsFor(AllBack)
	left := l.CellsFor(Left)

	cases := []struct {
		deg  float64
		want []int
	}{
		{0, frontUpper},
		{44.9, frontUpper},
		{45, right},
		{134.9, right},
		{135, back},
		{224.9, back},
		{225, left},
		{314.9, left},
		{315, frontUpper},
		{359.9, frontUpper},
		{360, frontUpper},
		{-45, frontUpper},
		{-90, left},
		{450, right},
	}
	for _, tc := range cases {
		if got := l.CellsForAngle(tc.deg); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("angle %v: expected %v, got %v", tc.deg, tc.want, got)
		}
	}
}

func TestCellsForAngle8(t *testing.T) {
	l := SequentialLayout
	if got := l.CellsForAngle8(0); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Fatalf("front: %v", got)
	}
	if got := l.CellsForAngle8(22.5); !reflect.DeepEqual(got, []int{1, 3}) {
		t.Fatalf("front-right: %v", got)
	}
	if got := l.CellsForAngle8(180); !reflect.DeepEqual(got, []int{4, 5, 6, 7}) {
		t.Fatalf("back: %v", got)
	}
	if got := l.CellsForAngle8(337.5); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Fatalf("337.5 should wrap to front: %v", got)
	}
}

func TestMirror(t *testing.T) {
	if Mirror(90) != 270 || Mirror(0) != 0 || Mirror(270) != 90 {
		t.Fatalf("mirror should swap left and right")
	}
}

func TestParseZone(t *testing.T) {
	z, err := ParseZone("Back_Lower_Right")
	if err != nil || z != BackLowerRight {
		t.Fatalf("expected back_lower_right, got %v %v", z, err)
	}
	if z, _ := ParseZone("front"); z != AllFront {
		t.Fatalf("front alias should map to all_front")
	}
	if _, err := ParseZone("belly"); err == nil {
		t.Fatalf("expected error for unknown zone")
	}
	if _, err := LayoutByName("diagonal"); err == nil {
		t.Fatalf("expected error for unknown layout")
	}
}
