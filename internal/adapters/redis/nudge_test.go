package redis

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListener_Handle(t *testing.T) {
	logger := zerolog.Nop()
	var calls []*uuid.UUID
	l := NewListener(nil, "verification:nudge", func(ctx context.Context, id *uuid.UUID) (int, error) {
		calls = append(calls, id)
		return 1, nil
	}, &logger)

	id := uuid.New()
	raw, err := json.Marshal(nudgeMessage{RequestID: &id})
	require.NoError(t, err)

	l.handle(context.Background(), string(raw))
	l.handle(context.Background(), `{}`)
	l.handle(context.Background(), `not json`)

	require.Len(t, calls, 2)
	require.NotNil(t, calls[0])
	assert.Equal(t, id, *calls[0])
	assert.Nil(t, calls[1])
}

func TestNudgeMessage_WireFormat(t *testing.T) {
	id := uuid.MustParse("6f1c2a8e-4b9d-4c1e-9a0b-2d3e4f5a6b7c")
	raw, err := json.Marshal(nudgeMessage{RequestID: &id})
	require.NoError(t, err)
	assert.JSONEq(t, `{"requestId":"6f1c2a8e-4b9d-4c1e-9a0b-2d3e4f5a6b7c"}`, string(raw))
}
