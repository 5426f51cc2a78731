package notify

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const MatchUpdatesChannel = "match-updates"

// RedisPublisher publishes the tournament id of each event on the match-updates channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client, channel: MatchUpdatesChannel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	return p.client.Publish(ctx, p.channel, event.TournamentID.String()).Err()
}
