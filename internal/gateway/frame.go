package gateway

import (
	"github.com/olyamironova/trade-gateway/internal/domain"
)

// Frame is one server-to-client message.
type Frame struct {
	Event   domain.EventName `json:"event"`
	Payload Payload          `json:"payload"`

	err error
}

// Payload is the response envelope shared by every event.
type Payload struct {
	PayloadEventKey domain.EventName `json:"payloadEventKey"`
	Success         bool             `json:"success"`
	Message         string           `json:"message,omitempty"`
	Data            interface{}      `json:"data,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// Err is the failure behind an unsuccessful frame, nil otherwise.
func (f Frame) Err() error { return f.err }

func success(event, key domain.EventName, msg string, data interface{}) Frame {
	return Frame{
		Event: event,
		Payload: Payload{
			PayloadEventKey: key,
			Success:         true,
			Message:         msg,
			Data:            data,
		},
	}
}

func failure(event domain.EventName, msg string, err error) Frame {
	return Frame{
		Event: event,
		Payload: Payload{
			PayloadEventKey: event,
			Success:         false,
			Message:         msg,
			Error:           err.Error(),
		},
		err: err,
	}
}

// ErrorFrame builds an unsuccessful frame for errors raised outside the
// dispatcher, such as undecodable input.
func ErrorFrame(event domain.EventName, msg string, err error) Frame {
	return failure(event, msg, err)
}
