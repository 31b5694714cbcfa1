// Package callbacktoken mints and verifies the signed tokens carried by
// emailed approve/reject links. A token proves the link was minted by this
// service for one approval and one action, recently enough to be honoured.
//
// Wire format: {hexHmac}:{timestampMillis}. The MAC covers the timestamp,
// the approval id and the action, so a token lifted from one link cannot
// drive another approval or the opposite action.
package callbacktoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/pesio-ai/be-timesheet-approvals/internal/clock"
	"github.com/pesio-ai/be-timesheet-approvals/internal/errors"
)

// Action is the transition a link is allowed to drive.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// DefaultMaxAge is how long an emailed link stays valid.
const DefaultMaxAge = 14 * 24 * time.Hour

// maxClockSkew bounds how far in the future a token's timestamp may be.
const maxClockSkew = time.Minute

// keyInfo is the HKDF info label for the link-signing key.
const keyInfo = "timesheet-approval-links"

var (
	ErrInvalidToken = errors.New(errors.ErrCodeUnauthorized, "callback link is invalid")
	ErrTokenExpired = errors.New(errors.ErrCodeUnauthorized, "callback link has expired")
)

// Signer produces a MAC over a message.
type Signer interface {
	Sign(msg []byte) []byte
}

// HMACSigner signs with HMAC-SHA256.
type HMACSigner struct {
	key []byte
}

// NewHMACSigner uses key as-is.
func NewHMACSigner(key []byte) *HMACSigner {
	k := make([]byte, len(key))
	copy(k, key)
	return &HMACSigner{key: k}
}

// NewSignerFromSecret derives a 32-byte signing key from the configured
// master secret with HKDF-SHA256.
func NewSignerFromSecret(secret string) (*HMACSigner, error) {
	if secret == "" {
		return nil, errors.InvalidInput("secret", "link signing secret is empty")
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to derive link signing key")
	}
	return &HMACSigner{key: key}, nil
}

func (s *HMACSigner) Sign(msg []byte) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(msg)
	return mac.Sum(nil)
}

// Service mints and verifies callback tokens.
type Service struct {
	signer Signer
	clock  clock.Clock
	maxAge time.Duration
}

// NewService creates a token service. maxAge <= 0 selects DefaultMaxAge.
func NewService(signer Signer, clk clock.Clock, maxAge time.Duration) *Service {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Service{signer: signer, clock: clk, maxAge: maxAge}
}

// MaxAge returns the validity window.
func (s *Service) MaxAge() time.Duration { return s.maxAge }

// Mint returns a token for approvalID and action, stamped with the current time.
func (s *Service) Mint(approvalID string, action Action) string {
	ts := s.clock.Now().UnixMilli()
	mac := s.signer.Sign(signedMessage(ts, approvalID, action))
	return hex.EncodeToString(mac) + ":" + strconv.FormatInt(ts, 10)
}

// Verify checks that token was minted for approvalID and action and is
// within the validity window. Tokens with a bad MAC always report
// ErrInvalidToken, whatever their timestamp.
func (s *Service) Verify(token, approvalID string, action Action) error {
	macHex, tsStr, ok := strings.Cut(token, ":")
	if !ok || macHex == "" || tsStr == "" {
		return ErrInvalidToken
	}
	got, err := hex.DecodeString(macHex)
	if err != nil {
		return ErrInvalidToken
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil || ts <= 0 {
		return ErrInvalidToken
	}

	want := s.signer.Sign(signedMessage(ts, approvalID, action))
	if !hmac.Equal(got, want) {
		return ErrInvalidToken
	}

	minted := time.UnixMilli(ts)
	now := s.clock.Now()
	if minted.After(now.Add(maxClockSkew)) {
		return ErrInvalidToken
	}
	if now.Sub(minted) > s.maxAge {
		return ErrTokenExpired
	}
	return nil
}

// ApproveURL builds {base}?id={id}&action=approve&token={token}.
func (s *Service) ApproveURL(base, approvalID string) string {
	token := s.Mint(approvalID, ActionApprove)
	return withQuery(base, "id="+url.QueryEscape(approvalID)+"&action=approve&token="+url.QueryEscape(token))
}

// RejectURL builds {base}?id={id}&token={token}.
func (s *Service) RejectURL(base, approvalID string) string {
	token := s.Mint(approvalID, ActionReject)
	return withQuery(base, "id="+url.QueryEscape(approvalID)+"&token="+url.QueryEscape(token))
}

func withQuery(base, query string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + query
}

func signedMessage(ts int64, approvalID string, action Action) []byte {
	return []byte(strconv.FormatInt(ts, 10) + "\n" + approvalID + "\n" + string(action))
}
