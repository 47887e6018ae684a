// Package domain defines typed rule-violation errors with stable codes so
// transport layers can render them directly.
package domain

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeInvalidArgument        Code = "invalid_argument"
	CodeAccountNotFound        Code = "account_not_found"
	CodeMissionNotFound        Code = "mission_not_found"
	CodeNodeNotFound           Code = "node_not_found"
	CodeInsufficientFunds      Code = "insufficient_funds"
	CodeVehicleNotControlled   Code = "vehicle_not_controlled"
	CodeVehicleBusy            Code = "vehicle_busy"
	CodeMissionNotActive       Code = "mission_not_active"
	CodeMissionIncomplete      Code = "mission_incomplete"
	CodeNotificationNotFound   Code = "notification_not_found"
	CodeSessionNotFound        Code = "session_not_found"
	CodeSessionUnauthenticated Code = "session_unauthenticated"
)

// Error is a domain-rule violation. It is data, not a fault: the operation
// was rejected and no state changed.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// E builds a domain error with a formatted message.
func E(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// As extracts a domain error if err carries one.
func As(err error) (*Error, bool) {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}
