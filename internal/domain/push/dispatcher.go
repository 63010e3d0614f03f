package push

import "context"

// Dispatcher delivers one encrypted payload to one subscription's push
// service endpoint. Implemented by the web push client in the
// infrastructure layer.
//
// A nil return means the push service accepted the message. An error
// wrapping ErrSubscriptionGone means the endpoint is permanently dead and
// should be removed. Any other error is transient: the subscription is
// kept and no retry happens within the call.
type Dispatcher interface {
	Deliver(ctx context.Context, sub *Subscription, payload *Payload) error
}
