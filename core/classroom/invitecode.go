package classroom

import (
	"crypto/rand"
	"errors"
	"regexp"
	"strings"

	"github.com/frogedu/backend/core"
)

var (
	ErrInvalidInviteCode = errors.New("invite code must be exactly 6 alphanumeric characters")

	inviteCodeRegex = regexp.MustCompile(`^[A-Z0-9]{6}$`)
)

const (
	inviteCodeLen = 6

	// 32 chars; 0/O and 1/I dropped so codes survive being read aloud.
	inviteCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// InviteCode is the 6-character code students redeem to join a classroom.
// The zero value is invalid; go through ParseInviteCode or GenerateInviteCode.
type InviteCode string

// ParseInviteCode normalizes (trim + uppercase) and validates a raw code.
func ParseInviteCode(s string) (InviteCode, error) {
	s = strings.ToUpper(core.CleanString(s))
	if !inviteCodeRegex.MatchString(s) {
		return "", ErrInvalidInviteCode
	}
	return InviteCode(s), nil
}

// GenerateInviteCode draws a random code from the unambiguous alphabet.
func GenerateInviteCode() InviteCode {
	buf := make([]byte, inviteCodeLen)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	for i, b := range buf {
		// len(alphabet) divides 256 evenly: no modulo bias
		buf[i] = inviteCodeAlphabet[int(b)%len(inviteCodeAlphabet)]
	}
	return InviteCode(buf)
}

func (c InviteCode) String() string {
	return string(c)
}
