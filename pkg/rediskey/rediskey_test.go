package rediskey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildNotifyKey(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.Equal(t, "watch:notify:42:1772355600", BuildNotifyKey("42", at))
	require.Equal(t, BuildNotifyKey("42", at), BuildNotifyKey("42", at.Add(500*time.Millisecond)))
}
