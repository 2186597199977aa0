package stream

import "errors"

var (
	// ErrNoMessages signals that a poll elapsed with nothing to read.
	ErrNoMessages = errors.New("stream: no messages available")
	// ErrTopicRequired is returned when the topic name is empty.
	ErrTopicRequired = errors.New("stream: topic is required")
	// ErrGroupRequired is returned when the consumer group name is empty.
	ErrGroupRequired = errors.New("stream: consumer group is required")
	// ErrPayloadRequired is returned when a published payload is empty.
	ErrPayloadRequired = errors.New("stream: payload is required")
	// ErrConsumerClosed is returned when a closed consumer is used.
	ErrConsumerClosed = errors.New("stream: consumer is closed")
)
