package rediskey

import (
	"fmt"
	"time"
)

const (
	NotifyPrefix = "watch:notify"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildNotifyKey returns "watch:notify:{taskID}:{unixSeconds}". One run of a
// task produces at most one notification, so the key doubles as the asynq task id.
func BuildNotifyKey(taskID string, runAt time.Time) string {
	return NamespaceKey(NotifyPrefix, fmt.Sprintf("%s:%d", taskID, runAt.Unix()))
}
