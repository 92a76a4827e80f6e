package billing

// Result is the structured outcome returned to page and API handlers.
type Result struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Kind    string      `json:"kind,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// NewResult turns an operation outcome into a Result. Expected conditions
// (conflict, validation, not found, external failure) become unsuccessful
// results with a nil error. Faults are returned as the error so the caller's
// top-level handler can treat them as server errors.
func NewResult(data interface{}, message string, err error) (Result, error) {
	if err == nil {
		return Result{Success: true, Message: message, Data: data}, nil
	}
	kind := KindOf(err)
	if kind == KindFault {
		return Result{Success: false, Message: "internal error", Kind: kind.String()}, err
	}
	r := Result{Success: false, Message: err.Error(), Kind: kind.String()}
	if kind == KindConflict {
		// conflicts carry the existing record
		r.Data = data
	}
	return r, nil
}
