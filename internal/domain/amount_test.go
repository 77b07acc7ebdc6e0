package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "zero", input: "0", want: "0"},
		{name: "one token", input: "1000000000", want: "1000000000"},
		{name: "bigger than uint64", input: "340282366920938463463374607431768211456", want: "340282366920938463463374607431768211456"},
		{name: "empty", input: "", wantErr: true},
		{name: "decimal point", input: "1.5", wantErr: true},
		{name: "hex", input: "0xff", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestFormatLamports(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals int
		want     string
	}{
		{name: "one whole token", amount: "1000000000", decimals: 9, want: "1.000000000"},
		{name: "zero", amount: "0", decimals: 9, want: "0.000000000"},
		{name: "sub-unit", amount: "42", decimals: 9, want: "0.000000042"},
		{name: "mixed", amount: "1234567890123", decimals: 9, want: "1234.567890123"},
		{name: "no decimals", amount: "777", decimals: 0, want: "777"},
		{name: "negative", amount: "-1500000000", decimals: 9, want: "-1.500000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := new(big.Int).SetString(tt.amount, 10)
			require.True(t, ok)
			assert.Equal(t, tt.want, FormatLamports(n, tt.decimals))
		})
	}
}
