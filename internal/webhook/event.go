package webhook

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedEvent reports a request body that is not a valid event
// envelope. Rejected at the boundary, before any business logic runs.
var ErrMalformedEvent = errors.New("malformed event payload")

// PullRequestEvent is the subset of GitHub's pull_request webhook envelope
// the oracle reads. It is consumed once per request and never persisted.
type PullRequestEvent struct {
	Action      string `json:"action"`
	PullRequest *struct {
		Merged bool `json:"merged"`
		User   *struct {
			Login string `json:"login"`
		} `json:"user"`
	} `json:"pull_request"`
}

// ParseEvent validates and decodes a raw webhook body. Bodies that are not
// JSON objects are ErrMalformedEvent; a structurally valid envelope that is
// simply not a merged PR parses fine and is filtered later.
func ParseEvent(body []byte) (*PullRequestEvent, error) {
	if len(body) == 0 {
		return nil, ErrMalformedEvent
	}
	var ev PullRequestEvent
	if err := json.Unmarshal(bytes.TrimSpace(body), &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return &ev, nil
}

// IsMergedPR reports whether the event denotes a pull request that was
// closed by merging. Everything else is deliberately ignored.
func (e *PullRequestEvent) IsMergedPR() bool {
	return e.Action == "closed" && e.PullRequest != nil && e.PullRequest.Merged
}

// Actor returns the GitHub login of the pull request author, or "" when the
// envelope does not carry one.
func (e *PullRequestEvent) Actor() string {
	if e.PullRequest == nil || e.PullRequest.User == nil {
		return ""
	}
	return e.PullRequest.User.Login
}

// FallbackDeliveryID derives a stable delivery identifier from the raw body
// for senders that omit the delivery header. Byte-identical replays still
// deduplicate; distinct events get distinct IDs.
func FallbackDeliveryID(body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("body-%x", sum[:16])
}
