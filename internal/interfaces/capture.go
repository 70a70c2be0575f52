package interfaces

// ResponseCapture records raw upstream responses for diagnostics
type ResponseCapture interface {
	Capture(name string, payload interface{}) (string, error)
}
