package hub

// Event types emitted by the core.
const (
	GenerationStarted   = "GenerationStarted"
	GenerationCompleted = "GenerationCompleted"
	PostPublished       = "PostPublished"
	ErrorOccurred       = "ErrorOccurred"
	JobEnqueued         = "JobEnqueued"
	JobFailed           = "JobFailed"
)
