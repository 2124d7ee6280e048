// Package orderid encodes and decodes the order ids handed to the payment
// gateway. The gateway echoes the id back unmodified in every notification,
// so user and workshop ids are recovered from it by position:
//
//	sub-{userID}-{unixMillis}-{suffix}
//	ws-{userID}-{workshopID}-{unixMillis}-{suffix}
//
// Fields are positional. Adding a dash-delimited field requires a new prefix.
package orderid

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Kind string

const (
	KindSubscription Kind = "subscription"
	KindWorkshop     Kind = "workshop"
)

const (
	prefixSubscription = "sub"
	prefixWorkshop     = "ws"

	separator  = "-"
	suffixSize = 6
)

// alphabet is url-safe and never contains the separator.
const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz_~"

var (
	ErrMalformed   = errors.New("malformed order id")
	ErrInvalidKind = errors.New("invalid order kind")
)

func (k Kind) Valid() bool {
	return k == KindSubscription || k == KindWorkshop
}

func (k Kind) prefix() string {
	if k == KindWorkshop {
		return prefixWorkshop
	}
	return prefixSubscription
}

// Parsed is the structural content of an order id.
type Parsed struct {
	Kind      Kind
	UserID    int64
	ItemID    *int64
	Timestamp time.Time
	Suffix    string
}

type Codec struct {
	now    func() time.Time
	random func([]byte) (int, error)
}

// NewCodec builds a codec with the given clock and random source. Nil values
// fall back to time.Now and crypto/rand.
func NewCodec(now func() time.Time, random func([]byte) (int, error)) *Codec {
	if now == nil {
		now = time.Now
	}
	if random == nil {
		random = rand.Read
	}
	return &Codec{now: now, random: random}
}

var defaultCodec = NewCodec(nil, nil)

func Encode(kind Kind, userID int64, itemID *int64) (string, error) {
	return defaultCodec.Encode(kind, userID, itemID)
}

// Encode builds a new order id. Workshop orders require an item id,
// subscription orders must not carry one.
func (c *Codec) Encode(kind Kind, userID int64, itemID *int64) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if userID <= 0 {
		return "", fmt.Errorf("user id must be positive, got %d", userID)
	}
	if kind == KindWorkshop && itemID == nil {
		return "", errors.New("workshop order requires an item id")
	}
	if kind == KindSubscription && itemID != nil {
		return "", errors.New("subscription order cannot carry an item id")
	}
	if itemID != nil && *itemID <= 0 {
		return "", fmt.Errorf("item id must be positive, got %d", *itemID)
	}

	suffix, err := c.suffix()
	if err != nil {
		return "", fmt.Errorf("generate order id suffix: %w", err)
	}

	parts := []string{kind.prefix(), strconv.FormatInt(userID, 10)}
	if itemID != nil {
		parts = append(parts, strconv.FormatInt(*itemID, 10))
	}
	parts = append(parts, strconv.FormatInt(c.now().UnixMilli(), 10), suffix)

	return strings.Join(parts, separator), nil
}

func (c *Codec) suffix() (string, error) {
	buf := make([]byte, suffixSize)
	if _, err := c.random(buf); err != nil {
		return "", err
	}
	// len(alphabet) is 64, so the modulo has no bias.
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}

// DecodeUserID returns the second field as a user id. A missing, non-numeric
// or non-positive field is ErrMalformed, never user 0.
func DecodeUserID(orderID string) (int64, error) {
	parts := strings.Split(orderID, separator)
	if len(parts) < 2 {
		return 0, fmt.Errorf("%w: %q has no user field", ErrMalformed, orderID)
	}
	return parseID(orderID, parts[1])
}

// DecodeItemID returns the workshop id of a ws- order. ok is false for any
// other order shape.
func DecodeItemID(orderID string) (id int64, ok bool, err error) {
	parts := strings.Split(orderID, separator)
	if parts[0] != prefixWorkshop || len(parts) < 4 {
		return 0, false, nil
	}
	id, err = parseID(orderID, parts[2])
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func DecodeKind(orderID string) (Kind, error) {
	prefix, _, _ := strings.Cut(orderID, separator)
	switch prefix {
	case prefixSubscription:
		return KindSubscription, nil
	case prefixWorkshop:
		return KindWorkshop, nil
	default:
		return "", fmt.Errorf("%w: unknown prefix %q", ErrMalformed, prefix)
	}
}

// Parse checks the full structure of an order id, including the field count
// expected for its prefix.
func Parse(orderID string) (*Parsed, error) {
	kind, err := DecodeKind(orderID)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(orderID, separator)
	want := 4
	if kind == KindWorkshop {
		want = 5
	}
	if len(parts) != want {
		return nil, fmt.Errorf("%w: %q has %d fields, want %d", ErrMalformed, orderID, len(parts), want)
	}

	userID, err := parseID(orderID, parts[1])
	if err != nil {
		return nil, err
	}

	p := &Parsed{Kind: kind, UserID: userID}
	if kind == KindWorkshop {
		itemID, err := parseID(orderID, parts[2])
		if err != nil {
			return nil, err
		}
		p.ItemID = &itemID
	}

	millis, err := strconv.ParseInt(parts[len(parts)-2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q has a non-numeric timestamp", ErrMalformed, orderID)
	}
	p.Timestamp = time.UnixMilli(millis)
	p.Suffix = parts[len(parts)-1]
	if p.Suffix == "" {
		return nil, fmt.Errorf("%w: %q has an empty suffix", ErrMalformed, orderID)
	}

	return p, nil
}

func parseID(orderID, field string) (int64, error) {
	id, err := strconv.ParseInt(field, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q has invalid id field %q", ErrMalformed, orderID, field)
	}
	return id, nil
}
