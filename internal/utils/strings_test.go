package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty", input: "", expected: nil},
		{name: "whitespace only", input: "   ", expected: nil},
		{name: "only commas", input: ",,,", expected: nil},
		{name: "single", input: "AAPL", expected: []string{"AAPL"}},
		{name: "trims", input: " AAPL , MSFT ", expected: []string{"AAPL", "MSFT"}},
		{name: "skips empty entries", input: "AAPL,,SPY,", expected: []string{"AAPL", "SPY"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseCSV(tt.input))
		})
	}
}

func TestParseCSV_PreservesInput(t *testing.T) {
	input := "AAPL, MSFT"
	originalInput := input

	_ = ParseCSV(input)

	assert.Equal(t, originalInput, input, "input should not be modified")
}

func TestNormalizeTicker(t *testing.T) {
	assert.Equal(t, "AAPL", NormalizeTicker(" aapl "))
	assert.Equal(t, "BRK-B", NormalizeTicker("brk-b"))
	assert.Equal(t, "", NormalizeTicker("  "))
}
