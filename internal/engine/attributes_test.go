package engine

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributes_Str(t *testing.T) {
	attrs := attributes{"venue": "IBKR", "empty": "", "null": nil, "num": 3}

	v, present, err := attrs.str("venue")
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, "IBKR", v)

	v, present, err = attrs.str("empty")
	require.NoError(t, err)
	assert.True(t, present)
	assert.Empty(t, v)

	_, present, err = attrs.str("null")
	require.NoError(t, err)
	assert.False(t, present)

	_, present, err = attrs.str("missing")
	require.NoError(t, err)
	assert.False(t, present)

	_, present, err = attrs.str("num")
	assert.True(t, present)
	assert.EqualError(t, err, "expected string, got int")
}

func TestAttributes_Flag(t *testing.T) {
	attrs := attributes{"on": true, "off": false, "word": "yes"}

	v, _, err := attrs.flag("on")
	require.NoError(t, err)
	assert.True(t, v)

	v, present, err := attrs.flag("off")
	require.NoError(t, err)
	assert.True(t, present)
	assert.False(t, v)

	v, present, err = attrs.flag("missing")
	require.NoError(t, err)
	assert.False(t, present)
	assert.False(t, v)

	_, _, err = attrs.flag("word")
	assert.EqualError(t, err, "expected bool, got string")
}

func TestAttributes_Number(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		want    float64
		wantErr string
	}{
		{name: "float64", value: 1.5, want: 1.5},
		{name: "int", value: 7, want: 7},
		{name: "uint16", value: uint16(9), want: 9},
		{name: "json number", value: json.Number("42"), want: 42},
		{name: "negative", value: -3, want: -3},
		{name: "string", value: "7", wantErr: "expected number, got string"},
		{name: "bool", value: true, wantErr: "expected number, got bool"},
		{name: "bad json number", value: json.Number("x"), wantErr: `invalid number "x"`},
		{name: "nan", value: math.NaN(), wantErr: "expected finite number, got NaN"},
		{name: "negative infinity", value: math.Inf(-1), wantErr: "expected finite number, got -Inf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, present, err := attributes{"k": tt.value}.number("k")
			assert.True(t, present)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAttributes_NilBag(t *testing.T) {
	var attrs attributes

	_, present, err := attrs.number("position_size")
	require.NoError(t, err)
	assert.False(t, present)
}
