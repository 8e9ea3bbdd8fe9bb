package client

import (
	"context"
	"errors"

	"github.com/ruteri/threshold-secret-registry/bundle"
	"github.com/ruteri/threshold-secret-registry/interfaces"
)

// Action is what a caller can do after an error.
type Action string

const (
	ActionNone           Action = "none"
	ActionRetry          Action = "retry"
	ActionWait           Action = "wait"
	ActionFixInput       Action = "fix-input"
	ActionSwitchIdentity Action = "switch-identity"
	ActionRefresh        Action = "refresh-state"
)

// Message is a user facing description of an error.
type Message struct {
	Kind   interfaces.ErrorKind
	Code   string
	Text   string
	Action Action
}

var registryMessages = map[string]struct {
	text   string
	action Action
}{
	interfaces.ErrAlreadyExists.Code:        {"a secret is already registered under this id; choose another label", ActionRefresh},
	interfaces.ErrInvalidThreshold.Code:     {"the threshold must satisfy 1 <= M <= N with at most 255 participants", ActionFixInput},
	interfaces.ErrDuplicateParticipant.Code: {"the participant list contains the same address twice", ActionFixInput},
	interfaces.ErrZeroParticipant.Code:      {"the participant list contains the zero address", ActionFixInput},
	interfaces.ErrUnknownSecret.Code:        {"no secret is registered under this id", ActionRefresh},
	interfaces.ErrNotParticipant.Code:       {"this identity is not a participant of the secret", ActionSwitchIdentity},
	interfaces.ErrAlreadyConfirmed.Code:     {"this identity already confirmed receipt of its share", ActionNone},
	interfaces.ErrNotActive.Code:            {"the secret is closed", ActionNone},
	interfaces.ErrNotOwner.Code:             {"only the owner can close the secret", ActionSwitchIdentity},
	interfaces.ErrLedgerUnavailable.Code:    {"the registry could not be reached; the outcome is unknown until it is queried again", ActionRetry},
}

// Describe explains err and the caller's next step. Each error kind gets its
// own message. A nil error yields the zero Message.
func Describe(err error) Message {
	if err == nil {
		return Message{}
	}

	if errors.Is(err, ErrSubmissionPending) {
		return Message{
			Kind:   interfaces.KindState,
			Text:   "a previous submission for this secret is still pending",
			Action: ActionWait,
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Message{
			Kind:   interfaces.KindUnavailable,
			Text:   "stopped waiting for the registry; a submitted write may still land",
			Action: ActionRefresh,
		}
	}

	if errors.Is(err, bundle.ErrIncompleteBundle) {
		return Message{
			Kind:   interfaces.KindValidation,
			Text:   "too few shares were delivered to ever reach the threshold; fix the failing keys and split again",
			Action: ActionFixInput,
		}
	}

	kind := interfaces.KindOf(err)
	code := interfaces.CodeOf(err)
	if m, ok := registryMessages[code]; ok {
		return Message{Kind: kind, Code: code, Text: m.text, Action: m.action}
	}

	switch kind {
	case interfaces.KindCrypto:
		return Message{Kind: kind, Text: "cryptographic failure: " + err.Error(), Action: ActionFixInput}
	default:
		return Message{Kind: interfaces.KindUnknown, Text: "unexpected error: " + err.Error(), Action: ActionNone}
	}
}
