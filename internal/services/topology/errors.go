package topology

import "fmt"

// Aggregation steps whose failure aborts the whole request
const (
	StepIdentity = "loginState"
	StepSites    = "accountSnapshotSites"
	StepAccount  = "account (IP ranges)"
)

// StepError is a fatal failure of one aggregation step
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
