// Package schemas embeds the JSON Schema documents shipped with the CLI.
package schemas

import "embed"

// FS holds every *.schema.json file in this directory.
//
//go:embed *.schema.json
var FS embed.FS

// Schema file names
const (
	Config            = "config.schema.json"
	PendingSubmission = "pending_submission.schema.json"
)

// Names lists every embedded schema.
func Names() []string {
	return []string{Config, PendingSubmission}
}
