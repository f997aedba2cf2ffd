package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hola", "hola"},
		{"  Opción 2 ", "opcion 2"},
		{"BUENÍSIMO", "buenisimo"},
		{"señá", "sena"},
		{"ps5", "ps5"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "input %q", tt.in)
	}
}

func TestSquash(t *testing.T) {
	assert.Equal(t, "monitor 24 144hz", Squash(`Monitor 24" 144Hz`))
	assert.Equal(t, "play 5", Squash("¿Play-5?"))
	assert.Equal(t, "", Squash("¡¿!?"))
}

func TestExtractOptionNumber(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"2", 2, true},
		{"la 1", 1, true},
		{"opción 3", 3, true},
		{"opcion 3 por favor", 3, true},
		{"el 4", 4, true},
		{"ps5", 0, false},
		{"quiero 9 unidades", 0, false},
		{"hola", 0, false},
	}
	for _, tt := range tests {
		got, ok := ExtractOptionNumber(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, "input %q", tt.in)
		}
	}
}
