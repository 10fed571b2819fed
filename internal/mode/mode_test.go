package mode

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/answerd/internal/session"
)

func sessionWithFiles(n int) *session.Session {
	s := &session.Session{}
	for i := 0; i < n; i++ {
		s.Files = append(s.Files, session.FileRef{FileID: "f"})
	}
	return s
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		sess     *session.Session
		override session.Mode
		want     session.Mode
	}{
		{"no files", "what is the capital of France?", sessionWithFiles(0), "", session.ModeGeneral},
		{"nil session", "anything", nil, "", session.ModeGeneral},
		{"files plus document keyword", "what does the document say?", sessionWithFiles(1), "", session.ModeDocument},
		{"files plus report keyword", "What does the report say about revenue?", sessionWithFiles(1), "", session.ModeDocument},
		{"files plus according to", "according to the figures, how much?", sessionWithFiles(1), "", session.ModeDocument},
		{"files plus pdf keyword uppercase", "Summarize the PDF", sessionWithFiles(1), "", session.ModeDocument},
		{"files no keyword", "tell me a joke", sessionWithFiles(1), "", session.ModeHybrid},
		{"keyword but no files stays general", "what does the report say?", sessionWithFiles(0), "", session.ModeGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Select(tt.query, tt.sess, tt.override))
		})
	}
}

func TestSelectOverrideWins(t *testing.T) {
	// Explicit override beats the heuristic regardless of keyword content.
	got := Select("what does the document say?", sessionWithFiles(3), session.ModeGeneral)
	assert.Equal(t, session.ModeGeneral, got)

	got = Select("tell me a joke", sessionWithFiles(0), session.ModeDocument)
	assert.Equal(t, session.ModeDocument, got)
}

func TestSelectInvalidOverrideIgnored(t *testing.T) {
	got := Select("tell me a joke", sessionWithFiles(1), "turbo")
	assert.Equal(t, session.ModeHybrid, got)
}
