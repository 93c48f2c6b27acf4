package realtime

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const bridgeChannelPrefix = "collab:update:"

// Bridge relays document updates between horizontally scaled instances over
// Redis pub/sub. Each instance tags its messages so it can ignore its own
// echoes.
type Bridge struct {
	client     *redis.Client
	instanceID string
}

type bridgeEnvelope struct {
	Origin string `json:"origin"`
	Update []byte `json:"update"`
}

func NewBridge(client *redis.Client) *Bridge {
	return &Bridge{client: client, instanceID: uuid.NewString()}
}

// Publish fans one update out to the document's channel. Failures are
// logged and absorbed: the local room already applied the update, and
// remote instances converge from persisted state on their next load.
func (b *Bridge) Publish(ctx context.Context, documentName string, update []byte) {
	payload, err := json.Marshal(bridgeEnvelope{Origin: b.instanceID, Update: update})
	if err != nil {
		log.Printf("realtime: encode bridge envelope: %v", err)
		return
	}
	if err := b.client.Publish(ctx, bridgeChannelPrefix+documentName, payload).Err(); err != nil {
		log.Printf("realtime: publish update for %s: %v", documentName, err)
	}
}

// Subscribe starts relaying remote updates for one document into apply.
// The returned function cancels the subscription.
func (b *Bridge) Subscribe(documentName string, apply func(update []byte)) func() {
	pubsub := b.client.Subscribe(context.Background(), bridgeChannelPrefix+documentName)

	go func() {
		for msg := range pubsub.Channel() {
			var envelope bridgeEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				log.Printf("realtime: malformed bridge payload for %s: %v", documentName, err)
				continue
			}
			if envelope.Origin == b.instanceID {
				continue
			}
			apply(envelope.Update)
		}
	}()

	return func() {
		if err := pubsub.Close(); err != nil {
			log.Printf("realtime: close bridge subscription for %s: %v", documentName, err)
		}
	}
}
