package games

import (
	"strings"
	"testing"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		id   string
		want Kind
	}{
		{id: "game-1", want: KindUnknown},
		{id: "ゲーム", want: KindUnknown},
		{id: "My Game v2.0", want: KindUnknown},
		{id: "", want: KindMissingIdentifier},
		{id: ".", want: KindInvalidIdentifier},
		{id: "..", want: KindInvalidIdentifier},
		{id: ".hidden", want: KindInvalidIdentifier},
		{id: "a/b", want: KindInvalidIdentifier},
		{id: `a\b`, want: KindInvalidIdentifier},
		{id: "a\x00b", want: KindInvalidIdentifier},
		{id: "c:evil", want: KindInvalidIdentifier},
		{id: " padded ", want: KindInvalidIdentifier},
		{id: strings.Repeat("x", MaxIDLength+1), want: KindInvalidIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := KindOf(ValidateID(tt.id)); got != tt.want {
				t.Fatalf("KindOf(ValidateID(%q)) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}
