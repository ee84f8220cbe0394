package store

import (
	"context"
	"encoding/json"

	"doable/internal/events"
	"doable/internal/utils/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const changeChannel = "doable:changes"

type changeMessage struct {
	Origin     string `json:"origin"`
	Collection string `json:"collection"`
}

// Notifier bridges change events between instances over Redis pub/sub.
// Mutations made by this process are emitted on the local bus directly; the
// bridge replays only changes that originated elsewhere, so each backend
// change reaches every subscriber exactly once.
type Notifier struct {
	client *redis.Client
	origin string
	log    *logger.Logger
}

func NewNotifier(client *redis.Client) *Notifier {
	return &Notifier{
		client: client,
		origin: uuid.New().String(),
		log:    logger.New("Notifier"),
	}
}

func (n *Notifier) Publish(ctx context.Context, collection string) error {
	payload, err := json.Marshal(changeMessage{Origin: n.origin, Collection: collection})
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, changeChannel, payload).Err()
}

// Listen consumes the change channel until ctx is cancelled, re-emitting
// remote changes on the local event bus.
func (n *Notifier) Listen(ctx context.Context) {
	sub := n.client.Subscribe(ctx, changeChannel)
	defer sub.Close()

	n.log.Info("Listening for remote changes on %s", changeChannel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var change changeMessage
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				n.log.Warn("Dropping malformed change message: %v", err)
				continue
			}
			if change.Origin == n.origin {
				continue
			}
			events.Emit(ChangedEvent(change.Collection), nil)
		}
	}
}
