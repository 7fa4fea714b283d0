package order

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Signature verification failures for success-page links.
var (
	ErrBadSignature = errors.New("order: invalid link signature")
	ErrLinkExpired  = errors.New("order: link expired")
)

// Signer issues and verifies HMAC signatures for success-page links so the
// confirmation page cannot be opened for arbitrary order numbers.
type Signer struct {
	Secret string
	MaxAge time.Duration
	Now    func() time.Time
}

// Sign returns the signature for an order number at the given timestamp
// (unix milliseconds).
func (s Signer) Sign(number string, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(s.Secret))
	fmt.Fprintf(mac, "%s:%d", number, timestamp)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature and link age for an order number.
func (s Signer) Verify(number, timestamp, signature string) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: malformed timestamp", ErrBadSignature)
	}
	expected := s.Sign(number, ts)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	if age := s.now().Sub(time.UnixMilli(ts)); age > s.maxAge() {
		return ErrLinkExpired
	}
	return nil
}

// Link builds the signed query parameters for a success-page URL.
func (s Signer) Link(number string) (timestamp int64, signature string) {
	timestamp = s.now().UnixMilli()
	return timestamp, s.Sign(number, timestamp)
}

// SignedQuery returns the query parameters, named as the Verify handler reads
// them, for a freshly signed success-page link.
func (s Signer) SignedQuery(number string) url.Values {
	ts, sig := s.Link(number)
	q := url.Values{}
	q.Set("order", number)
	q.Set("timestamp", strconv.FormatInt(ts, 10))
	q.Set("signature", sig)
	return q
}

func (s Signer) maxAge() time.Duration {
	if s.MaxAge > 0 {
		return s.MaxAge
	}
	return 24 * time.Hour
}

func (s Signer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
