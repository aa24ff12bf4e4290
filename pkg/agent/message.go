// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

// Package agent provides the message envelope and the agent contract shared
// by every coordination agent on the bus.
package agent

import (
	"time"
)

// MessageType discriminates the four message flavors on the bus.
type MessageType string

const (
	MessageRequest  MessageType = "request"
	MessageResponse MessageType = "response"
	MessageEvent    MessageType = "event"
	MessageCommand  MessageType = "command"
)

// Payload is the typed body of a Message. Each agent declares its own payload
// structs; Kind is the action discriminator agents switch on.
type Payload interface {
	Kind() string
}

// Message is the envelope routed by the orchestrator. ID and Timestamp are
// stamped by the bus on send; a response always carries the CorrelationID of
// the message that produced it.
type Message struct {
	ID            string
	Type          MessageType
	From          string
	To            []string
	Timestamp     time.Time
	CorrelationID string
	Payload       Payload
}

// Response is a generic result payload for requests and commands whose
// result has no dedicated struct.
type Response struct {
	Data map[string]interface{}
}

func (Response) Kind() string { return "response" }

// ErrorResponse is synthesized at the orchestrator boundary when a handler
// fails, so every request is guaranteed a correlated response. Code is the
// validation error code, 20002 for unclassified failures.
type ErrorResponse struct {
	Error string
	Code  int
}

func (ErrorResponse) Kind() string { return "error" }

// Command is the untyped escape hatch for externally submitted actions.
// Agents dispatch on their own payload structs first and fall back to the
// Action string, so an unrecognized Command yields an error response rather
// than a crash.
type Command struct {
	Action string
	Data   map[string]interface{}
}

func (c Command) Kind() string { return c.Action }

// String reads a string field from the command data.
func (c Command) String(key string) string {
	v, _ := c.Data[key].(string)
	return v
}

// Bool reads a bool field from the command data.
func (c Command) Bool(key string) bool {
	v, _ := c.Data[key].(bool)
	return v
}

// Int reads a numeric field. Numbers arriving through JSON decode as
// float64, so both representations are accepted.
func (c Command) Int(key string) int {
	switch v := c.Data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Int64 reads a numeric field as int64.
func (c Command) Int64(key string) int64 {
	switch v := c.Data[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

// Float reads a numeric field as float64.
func (c Command) Float(key string) float64 {
	switch v := c.Data[key].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	}
	return 0
}

// Strings reads a string-slice field, tolerating the []interface{} shape
// JSON decoding produces.
func (c Command) Strings(key string) []string {
	switch v := c.Data[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// FloatMap reads a string-to-number map field, tolerating the
// map[string]interface{} shape JSON decoding produces.
func (c Command) FloatMap(key string) map[string]float64 {
	switch v := c.Data[key].(type) {
	case map[string]float64:
		return v
	case map[string]interface{}:
		out := make(map[string]float64, len(v))
		for k, e := range v {
			if f, ok := e.(float64); ok {
				out[k] = f
			}
		}
		return out
	}
	return nil
}

// KillSwitch is broadcast by the policy layer to halt new work everywhere.
// Agents react by refusing new intake; in-flight matches and ticks finish.
type KillSwitch struct {
	Reason string
}

func (KillSwitch) Kind() string { return "kill_switch" }

// StatusEvent announces agent status transitions to the bus.
type StatusEvent struct {
	AgentID string
	Status  Status
}

func (StatusEvent) Kind() string { return "agent_status" }
