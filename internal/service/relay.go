package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/widget-session-server/internal/model"
	redisclient "github.com/openclaw/widget-session-server/internal/redis"
)

// Relay hands validated widget requests to the downstream conversation and
// commerce pipeline.
type Relay interface {
	Relay(ctx context.Context, req model.WidgetRequest) error
}

// RelayService stamps widget requests and forwards them to a Relay.
type RelayService struct {
	relay Relay
	now   func() time.Time
}

func NewRelayService(relay Relay) *RelayService {
	return &RelayService{relay: relay, now: time.Now}
}

func (s *RelayService) Forward(
	ctx context.Context,
	kind model.WidgetRequestKind,
	session *model.Session,
	payload json.RawMessage,
) (*model.WidgetRequest, error) {
	req := model.WidgetRequest{
		ID:         uuid.NewString(),
		Kind:       kind,
		SessionID:  session.ID,
		MerchantID: session.MerchantID,
		Payload:    payload,
		ReceivedAt: s.now().UTC(),
	}

	if err := s.relay.Relay(ctx, req); err != nil {
		return nil, fmt.Errorf("relay %s request: %w", kind, err)
	}
	return &req, nil
}

// RedisRelay publishes widget requests on the merchant's request channel.
type RedisRelay struct {
	client redis.UniversalClient
}

func NewRedisRelay(client redis.UniversalClient) *RedisRelay {
	return &RedisRelay{client: client}
}

func (r *RedisRelay) Relay(ctx context.Context, req model.WidgetRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}

	channel := redisclient.RequestChannel(req.MerchantID)
	receivers, err := r.client.Publish(ctx, channel, data).Result()
	if err != nil {
		return err
	}

	if receivers == 0 {
		log.Warn().
			Str("requestId", req.ID).
			Str("merchantId", req.MerchantID).
			Str("channel", channel).
			Msg("widget request published with no subscribers")
	}
	return nil
}

// LogRelay records widget requests without forwarding them. It is used when
// no pipeline is configured.
type LogRelay struct{}

func (LogRelay) Relay(_ context.Context, req model.WidgetRequest) error {
	log.Info().
		Str("requestId", req.ID).
		Str("kind", string(req.Kind)).
		Str("sessionId", req.SessionID).
		Str("merchantId", req.MerchantID).
		Int("payloadBytes", len(req.Payload)).
		Msg("widget request received")
	return nil
}
