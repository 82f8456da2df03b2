package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"ascii", "bg/title.cpx", "bg/title.cpx"},
		{"utf8", "背景.cpx", "背景.cpx"},
		{"shift-jis", "\x83\x65\x83\x58\x83\x67.txt", "テスト.txt"},
		{"trail byte is a backslash", "\x83\x5c.dat", "ソ.dat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DecodeName(tt.raw))
		})
	}
}
