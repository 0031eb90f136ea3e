package websocket

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/centrifugal/centrifuge"
	"github.com/juicerq/witch/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
)

// FavoriteLiveChannel carries every FavoriteLive event. Clients are
// subscribed to it server-side on connect.
const FavoriteLiveChannel = "notifications:favorite-live"

const brokerPrefix = "witch"

func NewNode(wsMetrics *metrics.WebSocketMetrics, logLevel string) (*centrifuge.Node, error) {
	conf := centrifuge.Config{LogLevel: parseCentrifugeLogLevel(logLevel), LogHandler: slogHandler}
	node, err := centrifuge.New(conf)
	if err != nil {
		return nil, fmt.Errorf("create centrifuge node: %w", err)
	}

	node.OnConnecting(onConnecting)
	node.OnConnect(onConnect(wsMetrics))

	return node, nil
}

// onConnecting accepts anonymous clients; the service has a single local user
// and the handler already filtered by origin.
func onConnecting(ctx context.Context, e centrifuge.ConnectEvent) (centrifuge.ConnectReply, error) {
	reply := centrifuge.ConnectReply{
		Subscriptions: map[string]centrifuge.SubscribeOptions{
			FavoriteLiveChannel: {},
		},
	}
	if _, ok := centrifuge.GetCredentials(ctx); !ok {
		reply.Credentials = &centrifuge.Credentials{}
	}
	return reply, nil
}

func onConnect(wsMetrics *metrics.WebSocketMetrics) func(client *centrifuge.Client) {
	return func(client *centrifuge.Client) {
		slog.Debug("Client connected", "client_id", client.ID(), "transport", client.Transport().Name())

		if wsMetrics != nil {
			wsMetrics.Clients.Inc()
			wsMetrics.Connects.Inc()
		}

		client.OnSubscribe(func(e centrifuge.SubscribeEvent, cb centrifuge.SubscribeCallback) {
			if e.Channel != FavoriteLiveChannel {
				cb(centrifuge.SubscribeReply{}, centrifuge.ErrorPermissionDenied)
				return
			}
			cb(centrifuge.SubscribeReply{}, nil)
		})

		client.OnDisconnect(func(e centrifuge.DisconnectEvent) {
			slog.Debug("Client disconnected", "client_id", client.ID(), "reason", e.Reason)
			if wsMetrics != nil {
				wsMetrics.Clients.Dec()
			}
		})
	}
}

// SetupRedis moves the node onto a Redis broker so several processes can
// share one notification channel. opts are the parsed REDIS_URL options of
// the cache client, so both connect with the same credentials.
func SetupRedis(node *centrifuge.Node, opts *goredis.Options) error {
	shard, err := centrifuge.NewRedisShard(node, shardConfig(opts))
	if err != nil {
		return fmt.Errorf("create redis shard: %w", err)
	}

	broker, err := centrifuge.NewRedisBroker(node, centrifuge.RedisBrokerConfig{
		Prefix: brokerPrefix,
		Shards: []*centrifuge.RedisShard{shard},
	})
	if err != nil {
		return fmt.Errorf("create redis broker: %w", err)
	}
	node.SetBroker(broker)
	return nil
}

func shardConfig(opts *goredis.Options) centrifuge.RedisShardConfig {
	return centrifuge.RedisShardConfig{
		Address:   opts.Addr,
		User:      opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}
}

func slogHandler(entry centrifuge.LogEntry) {
	attrs := make([]any, 0, len(entry.Fields)*2+2)
	attrs = append(attrs, "component", "centrifuge")
	for k, v := range entry.Fields {
		attrs = append(attrs, k, v)
	}
	switch entry.Level {
	case centrifuge.LogLevelTrace, centrifuge.LogLevelDebug:
		slog.Debug(entry.Message, attrs...)
	case centrifuge.LogLevelInfo:
		slog.Info(entry.Message, attrs...)
	case centrifuge.LogLevelWarn:
		slog.Warn(entry.Message, attrs...)
	case centrifuge.LogLevelError:
		slog.Error(entry.Message, attrs...)
	case centrifuge.LogLevelNone:
	}
}

func parseCentrifugeLogLevel(level string) centrifuge.LogLevel {
	switch level {
	case "debug":
		return centrifuge.LogLevelDebug
	case "warn":
		return centrifuge.LogLevelWarn
	case "error":
		return centrifuge.LogLevelError
	default:
		return centrifuge.LogLevelInfo
	}
}
