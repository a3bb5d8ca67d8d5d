package blob

import (
	"errors"
	"strings"
	"testing"
)

func TestHashOf(t *testing.T) {
	// sha256("Hello World")
	got := HashOf([]byte("Hello World"))
	want := Hash("a591a6d40bf420404a011733cfb7b190d62c65bf0bcda32b57b277d9ad9f146e")
	if got != want {
		t.Errorf("HashOf(Hello World) = %s, want %s", got, want)
	}
}

func TestHashOfEmpty(t *testing.T) {
	got := HashOf(nil)
	want := Hash("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
	if got != want {
		t.Errorf("HashOf(nil) = %s, want %s", got, want)
	}
}

func TestParseHash(t *testing.T) {
	valid := strings.Repeat("ab12", 16)

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", valid, false},
		{"empty", "", true},
		{"too short", valid[:63], true},
		{"too long", valid + "a", true},
		{"uppercase rejected", strings.ToUpper(valid), true},
		{"non-hex", strings.Repeat("zz12", 16), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := ParseHash(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseHash(%q) = %s, want error", tt.input, h)
				}
				if !errors.Is(err, ErrInvalidHash) {
					t.Errorf("ParseHash(%q) error = %v, want ErrInvalidHash", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseHash(%q) failed: %v", tt.input, err)
			}
			if string(h) != tt.input {
				t.Errorf("ParseHash(%q) = %s", tt.input, h)
			}
		})
	}
}

func TestShardKey(t *testing.T) {
	h := HashOf([]byte("Hello World"))
	want := "a5/91/a591a6d40bf420404a011733cfb7b190d62c65bf0bcda32b57b277d9ad9f146e"
	if got := h.ShardKey(); got != want {
		t.Errorf("ShardKey() = %s, want %s", got, want)
	}
}
