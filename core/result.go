package core

type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultError     ResultStatus = "error"
	ResultCancel    ResultStatus = "cancel"
)

// CommandResult is the single outcome of one command execution. Every waiter
// attached to the execution observes the same value.
type CommandResult struct {
	Status        ResultStatus
	Value         any
	Err           error
	CorrelationID string
}

// CacheServiced is implemented by local results that know whether they were
// answered from the credential cache.
type CacheServiced interface {
	ServicedFromCache() bool
}

func CompletedResult(correlationID string, value any) CommandResult {
	return CommandResult{Status: ResultCompleted, Value: value, CorrelationID: correlationID}
}

func ErrorResult(correlationID string, err error) CommandResult {
	return CommandResult{Status: ResultError, Err: err, CorrelationID: correlationID}
}

func CancelResult(correlationID string) CommandResult {
	return CommandResult{Status: ResultCancel, CorrelationID: correlationID}
}

// resultFromOutcome maps a controller return into a result. User cancel
// faults and context cancellation become Cancel.
func resultFromOutcome(correlationID string, value any, err error) CommandResult {
	if err == nil {
		return CompletedResult(correlationID, value)
	}
	if IsUserCancel(err) {
		return CancelResult(correlationID)
	}
	return ErrorResult(correlationID, wrapUnknownFault(err))
}

func (r CommandResult) Succeeded() bool {
	return r.Status == ResultCompleted
}

// IsLocalResult reports whether a Completed payload carries cache metadata.
func (r CommandResult) IsLocalResult() bool {
	if r.Status != ResultCompleted {
		return false
	}
	_, ok := r.Value.(CacheServiced)
	return ok
}

func (r CommandResult) ServicedFromCache() bool {
	if r.Status != ResultCompleted {
		return false
	}
	local, ok := r.Value.(CacheServiced)
	return ok && local.ServicedFromCache()
}

// ErrorCode is the telemetry error code for the result, empty on Completed.
func (r CommandResult) ErrorCode() string {
	switch r.Status {
	case ResultCancel:
		return FaultCodeUserCancel
	case ResultError:
		code := FaultCode(r.Err)
		if code == "" {
			return FaultCodeUnknown
		}
		return code
	default:
		return ""
	}
}

// CommandCallback receives a result through exactly one of its handlers.
type CommandCallback struct {
	OnCompleted func(value any)
	OnError     func(err error)
	OnCancel    func()
}

func (c CommandCallback) deliver(result CommandResult) {
	switch result.Status {
	case ResultCompleted:
		if c.OnCompleted != nil {
			c.OnCompleted(result.Value)
		}
	case ResultCancel:
		if c.OnCancel != nil {
			c.OnCancel()
		}
	default:
		if c.OnError != nil {
			c.OnError(result.Err)
		}
	}
}
