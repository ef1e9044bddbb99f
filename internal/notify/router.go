// Package notify maps a fired action onto the notification for its channel.
package notify

import (
	"github.com/omarbridgetech/AlertHub/internal/message"
)

type Router struct {
	emailTopic string
	smsTopic   string
}

func NewRouter(emailTopic, smsTopic string) *Router {
	return &Router{
		emailTopic: emailTopic,
		smsTopic:   smsTopic,
	}
}

// Route copies the destination and uses the template as the body unchanged.
// Anything other than EMAIL goes to the SMS topic.
func (r *Router) Route(msg message.ExecutionMessage) (message.NotificationMessage, string) {
	notification := message.NotificationMessage{
		Destination: msg.Destination,
		Body:        msg.MessageTemplate,
	}

	if msg.Channel == message.ChannelEmail {
		return notification, r.emailTopic
	}
	return notification, r.smsTopic
}
