package payment

import (
	"strings"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	secret := "sk_test_secret"
	body := []byte(`{"event":"charge.success","data":{"reference":"r1"}}`)
	good := Sign(secret, body)

	tests := []struct {
		name   string
		secret string
		body   []byte
		header string
		want   bool
	}{
		{"valid", secret, body, good, true},
		{"valid uppercase hex", secret, body, strings.ToUpper(good), true},
		{"wrong secret", "other", body, good, false},
		{"body changed", secret, []byte(`{"event":"charge.success","data":{"reference":"r2"}}`), good, false},
		{"reserialized body", secret, []byte(`{"data":{"reference":"r1"},"event":"charge.success"}`), good, false},
		{"missing header", secret, body, "", false},
		{"not hex", secret, body, "zz" + good[2:], false},
		{"empty secret", "", body, Sign("", body), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(tt.secret, tt.body, tt.header); got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSignIsHexSHA512(t *testing.T) {
	if got := len(Sign("k", []byte("x"))); got != 128 {
		t.Fatalf("signature length = %d, want 128", got)
	}
}
