// Package shared holds the wire format of the remote console.
package shared

import "encoding/json"

// MessageType is the kind of a console message.
type MessageType int

// Values match the browser terminal's response map.
const (
	MessageTypeText         MessageType = 0  // console output
	MessageTypeSession      MessageType = 8  // session ID announcement
	MessageTypeInputControl MessageType = 9  // enable or disable the input line
	MessageTypePrompt       MessageType = 12 // prompt symbol
)

// BreakRequest is the client text that interrupts a running program.
const BreakRequest = "__BREAK__"

// Message is one frame sent to or received from the remote console. Text
// frames that are not JSON are treated as a Message of type text.
type Message struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
	// NoNewline keeps the frontend from adding a line break after Content.
	NoNewline bool `json:"noNewline"`

	SessionID string `json:"sessionId,omitempty"`

	// For MessageTypeInputControl and MessageTypePrompt.
	InputEnabled *bool  `json:"inputEnabled,omitempty"`
	PromptSymbol string `json:"promptSymbol,omitempty"`
}

// ParseMessage decodes a client frame. Anything that is not a JSON object is
// returned as a text message with the raw frame as content.
func ParseMessage(data []byte) Message {
	var msg Message
	if len(data) > 0 && data[0] == '{' && json.Unmarshal(data, &msg) == nil {
		return msg
	}
	return Message{Type: MessageTypeText, Content: string(data)}
}

// InputControl returns a message that enables or disables console input.
func InputControl(enabled bool) Message {
	return Message{Type: MessageTypeInputControl, InputEnabled: &enabled}
}

// Prompt announces the prompt symbol the frontend shows before input.
func Prompt(symbol string) Message {
	return Message{Type: MessageTypePrompt, PromptSymbol: symbol}
}
