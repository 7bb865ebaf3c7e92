package detection

import "testing"

func TestDistSqToLineScaled(t *testing.T) {
	a, b := pixel{x: 0, y: 0}, pixel{x: 4, y: 0}
	tests := []struct {
		p    pixel
		want int
	}{
		{pixel{x: 0, y: 3}, 9 * 16},
		{pixel{x: 2, y: 0}, 0},
		// Beyond the end of the segment: distance to the line, not the chord.
		{pixel{x: 10, y: -2}, 4 * 16},
	}
	for _, tt := range tests {
		if got := distSqToLineScaled(tt.p, a, b); got != tt.want {
			t.Errorf("distSqToLineScaled(%+v) = %d, want %d", tt.p, got, tt.want)
		}
	}
}
