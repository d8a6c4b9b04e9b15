package model

// Status values for a settled resize task.
const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// ObjectEvent describes a finalized object in a storage bucket.
// It is provided by the event source (bucket notification or broker message)
// and is read-only from this service's point of view.
type ObjectEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"` // full object key, e.g. "images/photo_original.jpg"
	ContentType string `json:"content_type"`
}

// SizeSpec is a named resize target. Specs are loaded from configuration
// once at startup and never change for the lifetime of the process.
type SizeSpec struct {
	Width  int `json:"width" mapstructure:"width"`
	Height int `json:"height" mapstructure:"height"`
}

// TaskResult is the settled outcome of one resize task. Failures are carried
// as values instead of being dropped so that sinks, logs and tests can
// observe every task that ran.
type TaskResult struct {
	SizeName string
	DestPath string
	Width    int
	Height   int
	Err      error
}

// Status returns the storage-facing status string for the result.
func (r TaskResult) Status() string {
	if r.Err != nil {
		return StatusFailed
	}
	return StatusProcessed
}
