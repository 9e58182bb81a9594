package billing

import "errors"

// Billing error taxonomy. Webhook ingestion errors are fatal to the request;
// lifecycle errors map to 4xx responses; gateway errors abort before any local
// mutation.
var (
	ErrSignatureMissing     = errors.New("gateway signature header missing")
	ErrInvalidSignature     = errors.New("invalid gateway signature")
	ErrPlanNotFound         = errors.New("subscription plan not found")
	ErrAlreadySubscribed    = errors.New("user already has an activated subscription")
	ErrNoActiveTransaction  = errors.New("no live transaction record for user")
	ErrNoActiveSubscription = errors.New("no activated subscription for user")
	ErrGatewayRejected      = errors.New("payment gateway rejected the request")
	ErrGatewayUnavailable   = errors.New("payment gateway unavailable")
	ErrEventUnresolvable    = errors.New("event does not resolve to a known user or plan")
	ErrDuplicateEvent       = errors.New("event already processed")
)
