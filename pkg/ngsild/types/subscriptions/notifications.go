// Package subscriptions contains the notification payload a context broker
// sends to subscribers when entities change.
package subscriptions

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/diwise/context-bridge/pkg/ngsild/types"
	"github.com/diwise/context-bridge/pkg/ngsild/types/entities"
	"github.com/google/uuid"
)

const NotificationType string = "Notification"

type Notification struct {
	Id             string         `json:"id"`
	Type           string         `json:"type"`
	SubscriptionId string         `json:"subscriptionId"`
	NotifiedAt     string         `json:"notifiedAt"`
	Data           []types.Entity `json:"data"`
}

func (n *Notification) UnmarshalJSON(data []byte) error {
	// the alias drops this method so that the header fields can be decoded as usual
	type header Notification

	wire := struct {
		header
		Data json.RawMessage `json:"data"`
	}{}

	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*n = Notification(wire.header)

	if len(wire.Data) == 0 {
		n.Data = []types.Entity{}
		return nil
	}

	var err error
	n.Data, err = entities.NewFromSlice(wire.Data)
	if err != nil {
		return fmt.Errorf("failed to unmarshal notification data: %w", err)
	}

	return nil
}

// NewNotification wraps one or more entities in a notification from an anonymous subscription
func NewNotification(data ...types.Entity) *Notification {
	return &Notification{
		Id:             fmt.Sprintf("urn:ngsi-ld:Notification:%s", uuid.New().String()),
		Type:           NotificationType,
		SubscriptionId: "urn:ngsi-ld:Subscription:anonymous",
		NotifiedAt:     time.Now().UTC().Format(time.RFC3339Nano),
		Data:           data,
	}
}
