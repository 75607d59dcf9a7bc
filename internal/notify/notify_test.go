package notify

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriterFormats(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Notify(Notification{Level: Success, Title: "Top-up complete"})
	w.Notify(Notification{Level: Error, Title: "Login failed", Description: "invalid credentials"})

	assert.Equal(t, "[success] Top-up complete\n[error] Login failed: invalid credentials\n", buf.String())
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Notify(Notification{Level: Info, Title: "a"})
	r.Notify(Notification{Level: Info, Title: "b"})

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, "b", r.All()[1].Title)
}
