package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveAccuracy(t *testing.T) {
	tests := []struct {
		name  string
		hits  int
		shots int
		want  int
	}{
		{"no shots fired", 0, 0, 0},
		{"negative shots", 3, -1, 0},
		{"all misses", 0, 10, 0},
		{"seven of ten", 7, 10, 70},
		{"perfect", 10, 10, 100},
		{"rounds up", 1, 3, 33},
		{"rounds half up", 1, 2, 50},
		{"two of three", 2, 3, 67},
		{"inconsistent counters clamp", 10, 3, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveAccuracy(tt.hits, tt.shots))
		})
	}
}
