package bootstrap

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/consultation-scheduling/internal/config"
	"github.com/hackgods/consultation-scheduling/internal/events"
)

// streamMaxLen caps the notification stream; older entries are trimmed.
const streamMaxLen = 100_000

// OpenPublisher returns the outbound event transport selected by
// NOTIFY_DRIVER. rdb is only used by the redis driver.
func OpenPublisher(cfg config.Config, rdb *redis.Client, log *zap.Logger) (events.Publisher, error) {
	switch cfg.NotifyDriver {
	case config.NotifyDriverRedis:
		return events.NewRedisStreamPublisher(rdb, cfg.NotifyStream, streamMaxLen), nil
	case config.NotifyDriverAMQP:
		p, err := events.NewAMQPPublisher(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.NotifyDriverKafka:
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	default:
		return events.NewLogPublisher(log), nil
	}
}
