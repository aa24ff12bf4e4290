// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

package agent

import (
	"errors"
)

var (
	ErrDuplicateAgent  = errors.New("agent id already registered")
	ErrUnknownAgent    = errors.New("message targets an unregistered agent")
	ErrUnknownGameMode = errors.New("unknown game mode")
	ErrQueueFull       = errors.New("game mode queue is full")
	ErrBusSaturated    = errors.New("message queue is full")
	ErrBusStopped      = errors.New("orchestrator is shut down")
)

var validationErrorCodeMap = map[error]int{
	ErrDuplicateAgent:  620101,
	ErrUnknownAgent:    620102,
	ErrUnknownGameMode: 620103,
	ErrQueueFull:       620104,
	ErrBusSaturated:    620105,
	ErrBusStopped:      620106,
}

// ValidationErrorCode returns a code for the error, unwrapping as needed.
// It returns 20002 if the error is not registered in the map.
func ValidationErrorCode(err error) int {
	for sentinel, code := range validationErrorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return 20002
}
