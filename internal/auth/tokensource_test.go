package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		header string
		want   string
	}{
		{"cookie only", "cookie-token", "", "cookie-token"},
		{"header only", "", "Bearer header-token", "header-token"},
		{"cookie wins over header", "cookie-token", "Bearer header-token", "cookie-token"},
		{"case-insensitive scheme", "", "bearer header-token", "header-token"},
		{"missing scheme", "", "header-token", ""},
		{"empty", "", "", ""},
		{"bare scheme", "", "Bearer ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractToken(tt.cookie, tt.header))
		})
	}
}
