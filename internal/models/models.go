// Package models defines the core data structures for DASSPipe.
//
// It includes the assessment session record, delivery receipts, inbound responses
// and the JSON envelopes used by the HTTP API, which are shared across modules.
package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validation constants for input validation
const (
	// MaxParticipantIDLength defines the maximum allowed length for a participant identifier
	MaxParticipantIDLength = 64
	// MaxAnswerLength defines the maximum allowed length of a raw answer accepted over the API
	MaxAnswerLength = 256
)

// Error variables for better error handling and testability
var (
	ErrEmptyParticipant = errors.New("participant cannot be empty")
	ErrSessionNotFound  = errors.New("assessment session not found")
)

// MessageStatus represents the delivery status of a message.
type MessageStatus string

const (
	// MessageStatusSent indicates the message was sent.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered indicates the message was delivered.
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusRead indicates the message was read.
	MessageStatusRead MessageStatus = "read"
	// MessageStatusFailed indicates the message failed to send.
	MessageStatusFailed MessageStatus = "failed"
)

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusRecorded indicates an answer was recorded via API.
	APIStatusRecorded APIStatus = "recorded"
	// APIStatusRejected indicates an answer was rejected and the question stays open.
	APIStatusRejected APIStatus = "rejected"
)

// Receipt is a delivery event for an outbound message.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Response represents an incoming message from a participant.
type Response struct {
	From      string `json:"from"`
	Body      string `json:"body"`
	Time      int64  `json:"time"`
	MessageID string `json:"message_id,omitempty"` // transport message id, used for inbound dedup
}

// StartAssessmentRequest is the payload for starting an assessment for a participant.
type StartAssessmentRequest struct {
	ParticipantID string `json:"participant_id" validate:"required,max=64"`
}

// AnswerRequest is the payload for submitting one raw answer. An empty answer
// is valid here and rejected by the assessment as not a number.
type AnswerRequest struct {
	Answer string `json:"answer" validate:"max=256"`
}

// AnswerResult reports what happened to one submitted answer.
type AnswerResult struct {
	Accepted bool     `json:"accepted"`
	Resumed  bool     `json:"resumed,omitempty"` // the answer only re-ran a step interrupted by an earlier failure
	Messages []string `json:"messages,omitempty"` // messages sent to the participant while handling the answer
	Session  *Session `json:"session"`
}

// global validator instance
var validate = validator.New()

// ValidateStruct performs validation on any struct that has validation tags.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, fmt.Sprintf("field '%s' failed rule '%s'", e.Field(), e.Tag()))
	}
	return errors.New(strings.Join(messages, "; "))
}

// API Response types for consistent JSON responses

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// Recorded creates a recorded API response carrying the answer result.
func Recorded(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusRecorded).
		WithResult(result).
		Build()
}

// Rejected creates a rejected API response with the corrective message shown to the participant.
func Rejected(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusRejected).
		WithMessage(message).
		WithResult(result).
		Build()
}
