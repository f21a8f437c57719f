package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/chat-relay/pkg/log"
)

func TestLogWritesAuditFields(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithWriter(log.Config{Level: "info", ServiceName: "chat-relay"}, &buf)
	ctx := log.WithLogger(context.Background(), logger)

	LogWithDetail(ctx, ActionJoin, "alice", "general", "c1", "user joined")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "audit", entry["log_type"])
	assert.Equal(t, ActionJoin, entry["action"])
	assert.Equal(t, "alice", entry["username"])
	assert.Equal(t, "general", entry["room"])
	assert.Equal(t, "c1", entry["detail"])
	assert.Equal(t, "user joined", entry["message"])
}
