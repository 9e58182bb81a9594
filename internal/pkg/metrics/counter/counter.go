package counter

import (
	"context"
	"strconv"

	"github.com/learnspherehq/learnsphere/internal/pkg/cache"
)

const webhookCountersKey = "billing:counters:webhooks"

// Webhook counter fields
const (
	FieldReceived  = "received"
	FieldProcessed = "processed"
	FieldDuplicate = "duplicate"
	FieldRejected  = "rejected"
	FieldIgnored   = "ignored"
)

// AddWebhook increments the given webhook counter field in Redis
func AddWebhook(field string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhookCountersKey, field, 1).Err()
}

// WebhookSnapshot returns the current webhook counter values
func WebhookSnapshot() (map[string]int64, error) {
	ctx := context.Background()
	data, err := cache.GetClient().HGetAll(ctx, webhookCountersKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(data))
	for k, v := range data {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}
