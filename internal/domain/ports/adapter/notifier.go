package adapter

import "context"

// Notifier delivers a message to a user through the messaging transport.
// The core knows nothing about chats or keyboards beyond the opaque userID.
type Notifier interface {
	NotifyUser(ctx context.Context, userID, message string) error
}
