package geo

import "testing"

func TestRoundDecimal(t *testing.T) {
	cases := []struct {
		name string
		in   float64
		want float64
	}{
		{"already exact", 1.23450, 1.2345},
		{"rounds up", 1.234567, 1.23457},
		{"rounds down", 1.234561, 1.23456},
		{"negative", -0.123456, -0.12346},
		{"zero", 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RoundDecimal(tc.in, 5)
			if got != tc.want {
				t.Errorf("RoundDecimal(%v, 5) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestLatToYYToLatRoundTrip(t *testing.T) {
	// Mercator round-trip: converting a latitude to Y and back should land
	// within rounding error of the original value.
	lat := 40.71280
	y := LatToY(lat)
	got := RoundDecimal(YToLat(y), 5)
	if got != lat {
		t.Errorf("YToLat(LatToY(%v)) = %v, want %v", lat, got, lat)
	}
}

func TestCheckpointsValidate(t *testing.T) {
	var empty Checkpoints
	if err := empty.Validate(); err != ErrTooFewCheckpoints {
		t.Errorf("Validate() on empty checkpoints = %v, want ErrTooFewCheckpoints", err)
	}

	cp := Checkpoints{Start: Point{X: 1, Y: 1}, Finish: Point{X: 2, Y: 2}}
	if err := cp.Validate(); err != nil {
		t.Errorf("Validate() on start+finish = %v, want nil", err)
	}
}

func TestCheckpointsPoints(t *testing.T) {
	cp := Checkpoints{
		Start:        Point{X: 0, Y: 0},
		Intermediate: []Point{{X: 1, Y: 1}, {X: 2, Y: 2}},
		Finish:       Point{X: 3, Y: 3},
	}
	pts := cp.Points()
	if len(pts) != 4 {
		t.Fatalf("len(Points()) = %d, want 4", len(pts))
	}
	if pts[0] != cp.Start || pts[3] != cp.Finish {
		t.Errorf("Points() does not preserve start/finish order: %+v", pts)
	}
}
