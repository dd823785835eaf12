package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac>" computed over
// "<t>.<raw body>" with the shared webhook secret.
const SignatureHeader = "Payment-Signature"

const signatureTolerance = 5 * time.Minute

var ErrSignatureInvalid = errors.New("webhook signature invalid")

// VerifySignature checks the header against the raw body. Fails closed on any
// malformed header, stale timestamp, or digest mismatch.
func VerifySignature(secret string, body []byte, header string, now time.Time) error {
	var ts int64
	var sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, _ = strconv.ParseInt(v, 10, 64)
		case "v1":
			sig = v
		}
	}
	if ts == 0 || sig == "" {
		return ErrSignatureInvalid
	}

	at := time.Unix(ts, 0)
	if now.Sub(at) > signatureTolerance || at.Sub(now) > signatureTolerance {
		return ErrSignatureInvalid
	}

	expected := ComputeSignature(secret, body, ts)
	got, err := hex.DecodeString(sig)
	if err != nil {
		return ErrSignatureInvalid
	}
	want, _ := hex.DecodeString(expected)
	if !hmac.Equal(got, want) {
		return ErrSignatureInvalid
	}
	return nil
}

// ComputeSignature returns the hex digest for a body at a given timestamp.
func ComputeSignature(secret string, body []byte, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignHeader builds a complete header value, used by tests and the local
// gateway simulator.
func SignHeader(secret string, body []byte, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, ComputeSignature(secret, body, ts))
}
