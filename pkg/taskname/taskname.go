package taskname

const (
	// Watch tasks
	WatchNotify = "watch:notify"
)
