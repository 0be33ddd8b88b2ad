package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestCtx_Returns_Context_Logger(t *testing.T) {
	req := require.New(t)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	ctx := WithLogger(context.Background(), logger)

	// Level methods must chain directly off Ctx.
	Ctx(ctx).Error().Str(FieldUserID, "alice").Msg("boom")

	var entry map[string]interface{}
	req.NoError(json.Unmarshal(buf.Bytes(), &entry))
	req.Equal("error", entry["level"])
	req.Equal("alice", entry[FieldUserID])
	req.Equal("boom", entry["message"])
}

func TestCtx_Falls_Back_To_Global(t *testing.T) {
	req := require.New(t)

	l := Ctx(context.Background())
	req.NotNil(l)
	// The fallback logger must also accept chained level calls.
	l.Debug().Msg("fallback")
}
