package util

// Message returns error text without stack traces added by stackerr wrapping.
func Message(err error) string {
	type hasUnderlying interface {
		Underlying() error
	}
	for {
		eh, ok := err.(hasUnderlying)
		if !ok || eh.Underlying() == nil {
			return err.Error()
		}
		err = eh.Underlying()
	}
}
