// Package mode implements the response grounding decision.
package mode

import (
	"strings"

	"github.com/fyrsmithlabs/answerd/internal/session"
)

// documentKeywords are the lexical signals that a query is asking about
// uploaded material. The list is part of the engine's observable behavior;
// changing it changes which queries retrieve.
var documentKeywords = []string{
	"document",
	"file",
	"upload",
	"pdf",
	"report",
	"according to",
	"in the document",
}

// Select decides the grounding mode for one request. An explicit
// caller-supplied override always wins; otherwise:
//   - no uploaded files -> general
//   - query mentions a document keyword -> document
//   - files present, no keyword -> hybrid
//
// Deterministic and pure; callers validate the override before passing it.
func Select(queryText string, sess *session.Session, override session.Mode) session.Mode {
	if override != "" && session.ValidMode(override) {
		return override
	}

	if sess == nil || !sess.HasFiles() {
		return session.ModeGeneral
	}

	lowered := strings.ToLower(queryText)
	for _, kw := range documentKeywords {
		if strings.Contains(lowered, kw) {
			return session.ModeDocument
		}
	}
	return session.ModeHybrid
}
