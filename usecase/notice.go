package usecase

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/roberta039/Gym-Trainer/domain"
	"github.com/roberta039/Gym-Trainer/utils/log"
)

// Notifier delivers a transient, user-facing notice. Delivery is best effort.
type Notifier func(ctx context.Context, notice domain.Notice)

// BrokerNotifier publishes notices on domain.NoticeTopic, routed by session.
func BrokerNotifier(broker domain.MessageBroker) Notifier {
	return func(ctx context.Context, notice domain.Notice) {
		if broker == nil || notice.SessionID == "" {
			return
		}
		payload, err := json.Marshal(notice)
		if err != nil {
			log.WithCtx(ctx).Error("failed to marshal notice", zap.Error(err))
			return
		}
		if err := broker.Publish(ctx, domain.NoticeTopic, notice.SessionID, payload); err != nil {
			log.WithCtx(ctx).Warn("failed to publish notice", zap.String("kind", string(notice.Kind)), zap.Error(err))
		}
	}
}
