package epgsql

import (
	psqlerr "github.com/Online-GS/epgsql/errors"
	"github.com/Online-GS/epgsql/pkg/buffer"
)

// Notification represents an asynchronous notification received for a
// channel the connection issued LISTEN on. Notifications bypass the request
// queue entirely and are delivered to the configured subscriber.
type Notification struct {
	PID     int32  // process id of the notifying backend
	Channel string // channel the notification was sent on
	Payload string // optional payload supplied by NOTIFY
}

// NotificationFunc consumes asynchronous notifications. The function is
// invoked from the connection actor without awaiting acknowledgement and must
// not block; slow consumers should buffer on their side.
type NotificationFunc func(Notification)

// NoticeFunc consumes asynchronous backend notices. The notice carries the
// same field structure as a backend error.
type NoticeFunc func(*psqlerr.Error)

// readNotification decodes a backend NotificationResponse message.
func readNotification(msg *buffer.Message) (Notification, error) {
	pid, err := msg.GetInt32()
	if err != nil {
		return Notification{}, err
	}

	channel, err := msg.GetString()
	if err != nil {
		return Notification{}, err
	}

	payload, err := msg.GetString()
	if err != nil {
		return Notification{}, err
	}

	return Notification{PID: pid, Channel: channel, Payload: payload}, nil
}
