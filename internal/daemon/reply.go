package daemon

import (
	"github.com/controlbus/policyd/internal/policystate"
)

// Error codes carried in a Reply, one per distinct way a request can fail.
const (
	CodeMalformedMessage  = "MalformedMessage"
	CodeFrameTooLarge     = "FrameTooLarge"
	CodeBadSignature      = "BadSignature"
	CodeStaleEnvelope     = "StaleEnvelope"
	CodeReplayedEnvelope  = "ReplayedEnvelope"
	CodeRejectedByPolicy  = "RejectedByPolicy"
	CodeUnknownCommand    = "UnknownCommand"
	CodePersistenceFailed = "PersistenceFailed"
)

// Reply is the single JSON object the daemon writes back for every
// request: Status is always set; exactly one of Result or Doc is populated
// on success, Error is populated on failure.
type Reply struct {
	Status string              `json:"status"` // "ok" | "error"
	Error  *ReplyError         `json:"error,omitempty"`
	Result *policystate.Result `json:"result,omitempty"`
	Doc    *StatusDocument     `json:"status_document,omitempty"`
}

// ReplyError carries a stable Code and human Message, plus optional
// per-key details for RejectedByPolicy.
type ReplyError struct {
	Code    string                  `json:"code"`
	Message string                  `json:"message"`
	Reasons []policystate.FailedKey `json:"reasons,omitempty"`
}

func errorReply(code, message string) Reply {
	return Reply{Status: "error", Error: &ReplyError{Code: code, Message: message}}
}

func rejectedReply(reasons []policystate.FailedKey) Reply {
	return Reply{Status: "error", Error: &ReplyError{
		Code:    CodeRejectedByPolicy,
		Message: "one or more keys failed schema validation",
		Reasons: reasons,
	}}
}

func resultReply(r *policystate.Result) Reply {
	return Reply{Status: "ok", Result: r}
}

func statusReply(doc StatusDocument) Reply {
	return Reply{Status: "ok", Doc: &doc}
}
