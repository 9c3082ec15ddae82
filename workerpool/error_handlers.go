package workerpool

// reportInternalError reports an internal pool error.
//
// Internal errors are non-task-related failures such as
// worker setup issues. If no handler is registered, the error is
// only logged.
func (p *Pool) reportInternalError(e error) {
	if p.OnInternalError != nil {
		p.OnInternalError(e)
	}
}

// reportTaskError reports an error produced by panic recovery.
//
// Task errors do not stop pool execution.
func (p *Pool) reportTaskError(err error) {
	if p.OnTaskError != nil {
		p.OnTaskError(err)
	}
}
