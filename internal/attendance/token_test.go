package attendance

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestRandomTokensGenerate(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := RandomTokens{}.Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(tok) != 2*TokenBytes {
			t.Fatalf("len = %d, want %d", len(tok), 2*TokenBytes)
		}
		if _, err := hex.DecodeString(tok); err != nil {
			t.Fatalf("token %q is not hex: %v", tok, err)
		}
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}

func TestNewExternalID(t *testing.T) {
	a, err := NewExternalID(time.Time{})
	if err != nil {
		t.Fatalf("new external id: %v", err)
	}
	if !strings.HasPrefix(a, "session_") {
		t.Errorf("id %q lacks session_ prefix", a)
	}
	if len(a) != len("session_")+26 {
		t.Errorf("id %q has length %d", a, len(a))
	}
}

func TestValidateInterval(t *testing.T) {
	tests := []struct {
		in      int
		want    int
		wantErr bool
	}{
		{0, DefaultRotationInterval, false},
		{15, 15, false},
		{30, 30, false},
		{14, 0, true},
		{31, 0, true},
		{-5, 0, true},
	}
	for _, tt := range tests {
		got, err := ValidateInterval(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrConstraintViolation) {
				t.Errorf("ValidateInterval(%d) err = %v, want ErrConstraintViolation", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ValidateInterval(%d): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ValidateInterval(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestIsBusiness(t *testing.T) {
	if !IsBusiness(fmt.Errorf("wrap: %w", ErrDuplicateSubmission)) {
		t.Error("wrapped duplicate should be a business error")
	}
	if IsBusiness(errors.New("disk I/O error")) {
		t.Error("storage failure should not be a business error")
	}
	if IsBusiness(nil) {
		t.Error("nil should not be a business error")
	}
}
