package core

import "fmt"

// RequestStatus is the lifecycle state of a PartRequest.
type RequestStatus string

const (
	RequestDraft     RequestStatus = "DRAFT"
	RequestSubmitted RequestStatus = "SUBMITTED"
	RequestApproved  RequestStatus = "APPROVED"
	RequestReserved  RequestStatus = "RESERVED"
	RequestPartial   RequestStatus = "PARTIAL"
	RequestIssued    RequestStatus = "ISSUED"
	RequestCancelled RequestStatus = "CANCELLED"
	RequestClosed    RequestStatus = "CLOSED"
)

// requestTransitions lists the legal next states for each state.
// RESERVED and PARTIAL may move to themselves: re-reserving and issuing a
// partial request both land there again.
var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestDraft:     {RequestSubmitted, RequestCancelled},
	RequestSubmitted: {RequestApproved, RequestReserved, RequestPartial, RequestCancelled},
	RequestApproved:  {RequestReserved, RequestPartial, RequestCancelled},
	RequestReserved:  {RequestReserved, RequestPartial, RequestIssued, RequestApproved, RequestCancelled},
	RequestPartial:   {RequestReserved, RequestPartial, RequestIssued, RequestApproved, RequestCancelled},
	RequestIssued:    {RequestClosed},
	RequestCancelled: {},
	RequestClosed:    {},
}

// ParseRequestStatus validates a status string.
func ParseRequestStatus(s string) (RequestStatus, error) {
	st := RequestStatus(s)
	if _, ok := requestTransitions[st]; !ok {
		return "", fmt.Errorf("%w: unknown request status %q", ErrInvalidInput, s)
	}
	return st, nil
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	for _, allowed := range requestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s RequestStatus) IsTerminal() bool {
	return len(requestTransitions[s]) == 0
}

// CanReserve reports whether ReserveRequest may run. RESERVED and PARTIAL
// are accepted so a reservation can be retried or refreshed.
func (s RequestStatus) CanReserve() bool {
	switch s {
	case RequestSubmitted, RequestApproved, RequestReserved, RequestPartial:
		return true
	}
	return false
}

// CanIssue reports whether IssueRequest may run.
func (s RequestStatus) CanIssue() bool {
	return s == RequestReserved || s == RequestPartial
}

// checkTransition returns ErrInvalidState when current → next is illegal.
func checkTransition(requestID int, current, next RequestStatus) error {
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("%w: request %d cannot move from %s to %s", ErrInvalidState, requestID, current, next)
	}
	return nil
}

// statusAfterReserve is PARTIAL when any line with outstanding demand got
// less than it needed, RESERVED otherwise.
func statusAfterReserve(lines []PartRequestLine) RequestStatus {
	for _, l := range lines {
		needed := l.Outstanding()
		if needed.IsPositive() && l.QuantityReserved.LessThan(needed) {
			return RequestPartial
		}
	}
	return RequestReserved
}

// statusAfterIssue is ISSUED once every line is fully issued, PARTIAL otherwise.
func statusAfterIssue(lines []PartRequestLine) RequestStatus {
	for _, l := range lines {
		if !l.QuantityIssued.Equal(l.QuantityRequested) {
			return RequestPartial
		}
	}
	return RequestIssued
}

// statusTimestampColumn names the part_requests column stamped when a
// request enters status. Empty for statuses without a dedicated stamp.
func statusTimestampColumn(status RequestStatus) string {
	switch status {
	case RequestSubmitted:
		return "submitted_at"
	case RequestApproved:
		return "approved_at"
	case RequestReserved, RequestPartial:
		return "reserved_at"
	case RequestIssued:
		return "issued_at"
	case RequestClosed:
		return "closed_at"
	case RequestCancelled:
		return "cancelled_at"
	}
	return ""
}
