package telegram

import (
	"errors"
	"net/http"
	"time"

	tele "gopkg.in/telebot.v4"
)

// StatusOf extracts the Bot API status code from telebot errors, 0 if unknown.
func StatusOf(err error) int {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return http.StatusTooManyRequests
	}
	var group tele.GroupError
	if errors.As(err, &group) {
		return http.StatusBadRequest
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// RetryAfterOf returns the wait a flood error asks for, 0 for other errors.
func RetryAfterOf(err error) time.Duration {
	var flood tele.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		return time.Duration(flood.RetryAfter) * time.Second
	}
	return 0
}
