// Package pipeline implements the ordered request/response inspection
// chain: request steps run sequentially over a RequestRecord and may
// terminate early with a synthetic reply or a client-visible error;
// response steps run over a streamed sequence of StreamChunks with a
// bounded sliding buffer for the unredact rewrite.
package pipeline

import (
	"fmt"

	"github.com/stacklok/codegate/pkg/models"
)

// OutcomeKind discriminates the union carried by an Outcome.
type OutcomeKind string

const (
	OutcomeContinue OutcomeKind = "continue"
	OutcomeReplyNow OutcomeKind = "reply_now"
	OutcomeFail     OutcomeKind = "fail"
)

// ErrorKind is the client-visible error taxonomy from the error
// handling design: each maps to a fixed HTTP status at the API edge.
type ErrorKind string

const (
	ErrConfig       ErrorKind = "config_error"
	ErrRoute        ErrorKind = "route_error"
	ErrAuth         ErrorKind = "auth_error"
	ErrUpstream     ErrorKind = "upstream_error"
	ErrRedaction    ErrorKind = "redaction_failure"
	ErrInternal     ErrorKind = "internal_error"
)

// StepError is the detail carried by an OutcomeFail.
type StepError struct {
	Kind   ErrorKind
	Detail string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Outcome is a request step's result: exactly one of Request (Continue),
// ReplyText (ReplyNow), or Err (Fail) is meaningful, selected by Kind.
type Outcome struct {
	Kind      OutcomeKind
	Request   *models.RequestRecord
	ReplyText string
	Err       *StepError
}

// Continue builds a Continue outcome carrying the (possibly mutated)
// request state onward to the next step.
func Continue(req *models.RequestRecord) Outcome {
	return Outcome{Kind: OutcomeContinue, Request: req}
}

// ReplyNow builds an outcome that skips the upstream entirely; the
// engine synthesizes an assistant response from replyText instead.
func ReplyNow(replyText string) Outcome {
	return Outcome{Kind: OutcomeReplyNow, ReplyText: replyText}
}

// Fail builds a client-visible error outcome.
func Fail(kind ErrorKind, detail string) Outcome {
	return Outcome{Kind: OutcomeFail, Err: &StepError{Kind: kind, Detail: detail}}
}
