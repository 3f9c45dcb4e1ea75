package ledger

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mr-tron/base58"
)

const (
	Protocol = "RECEIPTID"
	Version  = "v1"
)

// signatureLen is the size of an ed25519 transaction signature.
const signatureLen = 64

// Later versions of this protocol are accepted; other protocols are not.
var memoPattern = regexp.MustCompile(`^(` + Protocol + `):(v\d+):HASH:([0-9a-fA-F]{64})$`)

var fingerprintPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// Memo is a decoded anchoring payload.
type Memo struct {
	Protocol    string
	Version     string
	Fingerprint string
}

// FormatMemo renders the payload written on chain for fp.
func FormatMemo(fp string) string {
	return fmt.Sprintf("%s:%s:HASH:%s", Protocol, Version, strings.ToLower(fp))
}

// ParseMemo matches s against the tagged payload pattern. Memos tagged
// with another protocol do not match.
func ParseMemo(s string) (Memo, bool) {
	m := memoPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Memo{}, false
	}
	return Memo{Protocol: m[1], Version: m[2], Fingerprint: strings.ToLower(m[3])}, true
}

func validFingerprint(fp string) bool {
	return fingerprintPattern.MatchString(fp)
}

// ValidTxID reports whether id decodes to a 64-byte signature.
func ValidTxID(id string) bool {
	if id == "" || strings.TrimSpace(id) != id {
		return false
	}
	raw, err := base58.Decode(id)
	return err == nil && len(raw) == signatureLen
}
