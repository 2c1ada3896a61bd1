//go:build amd64 || arm64

package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntToUint32(t *testing.T) {
	tests := []struct {
		name    string
		in      int
		want    uint32
		wantErr bool
	}{
		{name: "zero", in: 0, want: 0},
		{name: "small", in: 123, want: 123},
		{name: "max uint32", in: math.MaxUint32, want: math.MaxUint32},
		{name: "negative", in: -1, wantErr: true},
		{name: "beyond max", in: math.MaxUint32 + 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IntToUint32(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrOutOfRange)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestUint32ToInt(t *testing.T) {
	// On 64-bit platforms every uint32 fits, so only success cases exist.
	tests := []struct {
		name string
		in   uint32
		want int
	}{
		{name: "zero", in: 0, want: 0},
		{name: "small", in: 123, want: 123},
		{name: "max uint32", in: math.MaxUint32, want: math.MaxUint32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Uint32ToInt(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
