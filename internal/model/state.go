// Package model defines the dialogue data model shared by the transports,
// the state store and the message pipeline: users, sessions, messages and
// the closed enumerations that describe them.
package model

import (
	"log"
	"strings"
)

// RobotState is one of the eight emotional states the robot can express
// while delivering a reply.
type RobotState string

const (
	StateAttention RobotState = "attention"
	StateHello     RobotState = "hello"
	StateNo        RobotState = "no"
	StateYes       RobotState = "yes"
	StateAngry     RobotState = "angry"
	StateSad       RobotState = "sad"
	StateJoy       RobotState = "joy"
	StateBlush     RobotState = "blush"
)

var robotStates = map[RobotState]struct{}{
	StateAttention: {},
	StateHello:     {},
	StateNo:        {},
	StateYes:       {},
	StateAngry:     {},
	StateSad:       {},
	StateJoy:       {},
	StateBlush:     {},
}

// ParseRobotState reports whether raw names a known robot state.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseRobotState(raw string) (RobotState, bool) {
	state := RobotState(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := robotStates[state]
	return state, ok
}

// CoerceRobotState maps raw onto a known robot state, falling back to
// StateAttention for anything outside the closed set. The coercion is
// idempotent: coercing an already-valid state returns it unchanged.
func CoerceRobotState(raw string, logger *log.Logger) RobotState {
	if state, ok := ParseRobotState(raw); ok {
		return state
	}
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("[model] unknown robot state %q, coercing to %q", raw, StateAttention)
	return StateAttention
}

// OperationMode selects between operator-moderated and autonomous reply
// dispatch.
type OperationMode string

const (
	ModeManual    OperationMode = "manual"
	ModeAutomatic OperationMode = "automatic"
)

// ConnectionState tracks a transport's reconnection state machine.
type ConnectionState string

const (
	ConnDisconnected ConnectionState = "disconnected"
	ConnConnecting   ConnectionState = "connecting"
	ConnConnected    ConnectionState = "connected"
	ConnRegistered   ConnectionState = "registered"
	ConnError        ConnectionState = "error"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderClient Sender = "client"
	SenderRobot  Sender = "robot"
	SenderWizard Sender = "wizard"
	SenderSystem Sender = "system"
)
