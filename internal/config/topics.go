package config

const (
	// TopicJobStatus is the NSQ topic where the job engine publishes
	// state transitions of indexing jobs.
	TopicJobStatus = "index.job.status"
)
