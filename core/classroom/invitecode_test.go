package classroom

import (
	"strings"
	"testing"
)

func TestParseInviteCode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    InviteCode
		wantErr error
	}{
		{name: "empty", raw: "", wantErr: ErrInvalidInviteCode},
		{name: "too short", raw: "ABC12", wantErr: ErrInvalidInviteCode},
		{name: "too long", raw: "ABC1234", wantErr: ErrInvalidInviteCode},
		{name: "invalid chars", raw: "ABC-12", wantErr: ErrInvalidInviteCode},
		{name: "valid", raw: "ABC123", want: "ABC123"},
		{name: "lowercased input", raw: "abc123", want: "ABC123"},
		{name: "whitespace trimmed", raw: "  abc123\n", want: "ABC123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInviteCode(tt.raw)
			if err != tt.wantErr {
				t.Fatalf("ParseInviteCode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseInviteCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGenerateInviteCode(t *testing.T) {
	for i := 0; i < 100; i++ {
		code := GenerateInviteCode()
		if len(code) != inviteCodeLen {
			t.Fatalf("GenerateInviteCode() len = %d, want %d", len(code), inviteCodeLen)
		}
		for _, c := range code.String() {
			if !strings.ContainsRune(inviteCodeAlphabet, c) {
				t.Fatalf("GenerateInviteCode() = %s, %q not in alphabet", code, c)
			}
		}
		if _, err := ParseInviteCode(code.String()); err != nil {
			t.Fatalf("generated code does not parse back, %v", err)
		}
	}
}
