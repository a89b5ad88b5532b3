package notification

import "errors"

var (
	ErrNotFound              = errors.New("notification not found")
	ErrUnknownChannel        = errors.New("unknown channel type")
	ErrChannelNotImplemented = errors.New("channel not implemented")
	ErrRecipientNotFound     = errors.New("recipient not found")
)
