package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Sure! Here it is: {\"a\":1} Hope that helps.", `{"a":1}`},
		{"no braces", "  8510.10  ", "8510.10"},
		{"nested", `x {"a":{"b":2}} y`, `{"a":{"b":2}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Code string `json:"hs_code"`
	}
	require.NoError(t, DecodeJSON("```json\n{\"hs_code\":\"8510\"}\n```", &v))
	assert.Equal(t, "8510", v.Code)

	assert.Error(t, DecodeJSON("no json here", &v))
	assert.Error(t, DecodeJSON("{broken", &v))
}
