package stream

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookforge-gateway/internal/errs"
	"bookforge-gateway/internal/models"
)

func TestWriteFrame_Shapes(t *testing.T) {
	tests := []struct {
		name  string
		event models.Event
		want  string
	}{
		{
			name:  "chunk",
			event: models.Chunk("Hi"),
			want:  "data: {\"chunk\":\"Hi\"}\n\n",
		},
		{
			name: "done",
			event: models.Done("Hi there", models.Metadata{
				StopReason: "end_turn", InputTokens: 3, OutputTokens: 2, WordCount: 2,
			}),
			want: "data: {\"done\":true,\"content\":\"Hi there\",\"metadata\":{\"stopReason\":\"end_turn\",\"inputTokens\":3,\"outputTokens\":2,\"wordCount\":2}}\n\n",
		},
		{
			name:  "error",
			event: models.Failed(errs.New(errs.KindUpstreamAuth, "invalid key")),
			want:  "data: {\"error\":\"invalid key\",\"type\":\"upstream_auth\"}\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteFrame(&buf, FrameFromEvent(tt.event)))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestParseFrame_DoneWithEmptyContent(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, FrameFromEvent(models.Done("", models.Metadata{}))))

	var lines LineBuffer
	got := lines.Feed(buf.Bytes())
	require.Len(t, got, 2)

	payload, ok := DataPayload(got[0])
	require.True(t, ok)
	frame, err := ParseFrame(payload)
	require.NoError(t, err)
	assert.True(t, frame.IsTerminal())
	require.NotNil(t, frame.Content, "an empty done content is still present on the wire")
	assert.Equal(t, "", *frame.Content)
}
