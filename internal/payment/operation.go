package payment

// Parameter names that carry a caller-supplied transaction reference.
const (
	ParamTransactionReference = "transactionReference"
	// ParamReceipt is the legacy name of ParamTransactionReference.
	ParamReceipt = "receipt"
)

// OperationContext is the per-call view of an operation attempt.
type OperationContext struct {
	Operation         Operation
	Triple            Triple
	SuppliedReference string
	Params            map[string]string
}

// NewOperationContext builds the context for op from the caller's explicit params.
func NewOperationContext(op Operation, params map[string]string) OperationContext {
	ref := params[ParamTransactionReference]
	if ref == "" {
		ref = params[ParamReceipt]
	}
	return OperationContext{
		Operation:         op,
		Triple:            op.Triple(),
		SuppliedReference: ref,
		Params:            params,
	}
}
