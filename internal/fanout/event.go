package fanout

import (
	"time"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/models"
)

// Topic is a logical change-event stream. One subscription per viewing
// session covers all topics the session cares about.
type Topic string

const (
	// TopicProfileUpdates carries visibility profile changes and friendship
	// edge changes (both alter pool membership the same way).
	TopicProfileUpdates  Topic = "profile_updates"
	TopicPositionUpdates Topic = "position_updates"
	TopicNewMessages     Topic = "new_messages"
	TopicMessageReadAcks Topic = "message_read_acks"
	TopicNewStories      Topic = "new_stories"
)

// AllTopics returns every topic a viewing session subscribes to.
func AllTopics() []Topic {
	return []Topic{
		TopicProfileUpdates,
		TopicPositionUpdates,
		TopicNewMessages,
		TopicMessageReadAcks,
		TopicNewStories,
	}
}

// Event is a single upstream change notification. SubjectID identifies the
// entity owner (profile owner, position owner, message sender, story owner);
// events for the same subject are applied in delivery order, no cross-subject
// ordering is guaranteed.
type Event struct {
	Topic     Topic     `json:"topic"`
	SubjectID uint      `json:"subject_id"`
	At        time.Time `json:"at"`

	// ReaderID is set on read-ack events: the viewer who read SubjectID's
	// messages.
	ReaderID uint `json:"reader_id,omitempty"`

	Profile  *models.VisibilityProfile `json:"profile,omitempty"`
	Position *models.UserPosition      `json:"position,omitempty"`
	Message  *models.UserMessage       `json:"message,omitempty"`
	Story    *models.Story             `json:"story,omitempty"`
}
