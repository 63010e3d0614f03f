package push

import (
	"errors"
	"fmt"
	"time"
)

// Notification types a push can carry
const (
	TypeStella = "stella"
	TypeReply  = "reply"
	TypeRepost = "repost"
)

// Delivery preferences
const (
	PreferenceAll         = "all"
	PreferenceRepliesOnly = "replies_only"
)

var validTypes = map[string]struct{}{
	TypeStella: {},
	TypeReply:  {},
	TypeRepost: {},
}

var validPreferences = map[string]struct{}{
	PreferenceAll:         {},
	PreferenceRepliesOnly: {},
}

// Domain errors
var (
	// ErrSubscriptionGone is the push service's authoritative signal (404/410)
	// that an endpoint will never accept deliveries again.
	ErrSubscriptionGone     = errors.New("subscription gone")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrInvalidType          = errors.New("invalid notification type")
	ErrInvalidPreference    = errors.New("preference must be 'all' or 'replies_only'")
	ErrInvalidSubscription  = errors.New("invalid subscription")
)

// Subscription is one browser/device push registration. The endpoint is the
// natural key: re-registering the same endpoint replaces the prior record.
// Auth and P256dh stay base64url-encoded as received from the browser and
// are only decoded at encryption time.
type Subscription struct {
	ID         string    `json:"id"`
	Pubkey     string    `json:"pubkey"`
	Endpoint   string    `json:"endpoint"`
	Auth       string    `json:"auth"`
	P256dh     string    `json:"p256dh"`
	Preference string    `json:"preference"`
	CreatedAt  time.Time `json:"created_at"`
}

// Payload is the notification shown by the browser. Built per send,
// never persisted.
type Payload struct {
	Title string      `json:"title"`
	Body  string      `json:"body"`
	Tag   string      `json:"tag"`
	Data  PayloadData `json:"data"`
}

type PayloadData struct {
	URL string `json:"url"`
}

// payloadTable maps a notification type to its fixed display content.
// The tag is per type, not per event, so a newer notification of the same
// kind replaces the unread one in the OS notification center.
var payloadTable = map[string]Payload{
	TypeStella: {Title: "MY PACE", Body: "New stella on your posts", Tag: "mypace-stella"},
	TypeReply:  {Title: "MY PACE", Body: "New reply to your post", Tag: "mypace-reply"},
	TypeRepost: {Title: "MY PACE", Body: "New repost of your post", Tag: "mypace-repost"},
}

// NewPayload builds the display payload for a notification type.
func NewPayload(notificationType string) (*Payload, error) {
	p, ok := payloadTable[notificationType]
	if !ok {
		return nil, ErrInvalidType
	}
	p.Data = PayloadData{URL: "/"}
	return &p, nil
}

func IsValidType(t string) bool {
	_, ok := validTypes[t]
	return ok
}

func IsValidPreference(p string) bool {
	_, ok := validPreferences[p]
	return ok
}

// Wants reports whether this subscription's preference admits the given
// notification type. replies_only receives only replies.
func (s *Subscription) Wants(notificationType string) bool {
	switch s.Preference {
	case PreferenceRepliesOnly:
		return notificationType == TypeReply
	default:
		return true
	}
}

// CreateSubscriptionParams contains parameters for registering a subscription
type CreateSubscriptionParams struct {
	Pubkey     string
	Endpoint   string
	Auth       string
	P256dh     string
	Preference string
}

func (p CreateSubscriptionParams) Validate() error {
	if p.Pubkey == "" {
		return fmt.Errorf("%w: pubkey is required", ErrInvalidSubscription)
	}
	if p.Endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidSubscription)
	}
	if p.Auth == "" || p.P256dh == "" {
		return fmt.Errorf("%w: subscription keys are required", ErrInvalidSubscription)
	}
	if p.Preference != "" && !IsValidPreference(p.Preference) {
		return ErrInvalidPreference
	}
	return nil
}
