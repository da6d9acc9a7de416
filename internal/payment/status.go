package payment

import "fmt"

// Status is the lifecycle state of a payment.
type Status string

const (
	StatusCreated        Status = "Created"
	StatusAuthorized     Status = "Authorized"
	StatusPendingVoid    Status = "PendingVoid"
	StatusVoided         Status = "Voided"
	StatusPendingCapture Status = "PendingCapture"
	StatusCaptured       Status = "Captured"
	StatusPendingRefund  Status = "PendingRefund"
	StatusRefunded       Status = "Refunded"
)

// Operation is a gateway action that moves a payment between statuses.
type Operation string

const (
	OperationVoid    Operation = "void"
	OperationCapture Operation = "capture"
	OperationRefund  Operation = "refund"
)

// Operations lists every supported operation kind.
var Operations = []Operation{OperationVoid, OperationCapture, OperationRefund}

// Triple is the fixed status transition set of an operation kind.
type Triple struct {
	StartStatuses []Status
	Pending       Status
	Success       Status
}

var triples = map[Operation]Triple{
	OperationVoid: {
		StartStatuses: []Status{StatusAuthorized},
		Pending:       StatusPendingVoid,
		Success:       StatusVoided,
	},
	OperationCapture: {
		StartStatuses: []Status{StatusAuthorized},
		Pending:       StatusPendingCapture,
		Success:       StatusCaptured,
	},
	OperationRefund: {
		StartStatuses: []Status{StatusCaptured},
		Pending:       StatusPendingRefund,
		Success:       StatusRefunded,
	},
}

// ParseOperation converts a raw operation name into an Operation.
func ParseOperation(s string) (Operation, error) {
	op := Operation(s)
	if _, ok := triples[op]; !ok {
		return "", fmt.Errorf("unknown operation %q", s)
	}
	return op, nil
}

// Triple returns the transition triple for the operation.
func (o Operation) Triple() Triple {
	return triples[o]
}

// Valid reports whether o is a known operation kind.
func (o Operation) Valid() bool {
	_, ok := triples[o]
	return ok
}

// IsStart reports whether s is one of the triple's start statuses.
func (t Triple) IsStart(s Status) bool {
	for _, start := range t.StartStatuses {
		if start == s {
			return true
		}
	}
	return false
}

// OperationForStatus finds the operation whose pending or success status is s.
// Used by the webhook transport when the caller does not name the operation.
func OperationForStatus(s Status) (Operation, bool) {
	for _, op := range Operations {
		t := triples[op]
		if t.Pending == s || t.Success == s {
			return op, true
		}
	}
	return "", false
}
