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
		{name: "empty string", input: "", expected: nil},
		{name: "single value", input: "daily", expected: []string{"daily"}},
		{name: "varied spacing", input: "daily,  weekly , monthly", expected: []string{"daily", "weekly", "monthly"}},
		{name: "only separators", input: " , ,", expected: nil},
		{name: "trailing comma", input: "stockx,", expected: []string{"stockx"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseCSV(tt.input))
		})
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := ParseIDs("1, 2,3")
	assert.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	ids, err = ParseIDs("")
	assert.NoError(t, err)
	assert.Empty(t, ids)

	_, err = ParseIDs("1,x")
	assert.Error(t, err)

	_, err = ParseIDs("0")
	assert.Error(t, err)
}
