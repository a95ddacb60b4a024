package report

import "github.com/AnkitD0811/cloud-security-scanner/tools"

// payload is the object the writer call is asked to return.
type payload struct {
	Issues []Finding `json:"issues"`
}

// ResponseSchema is the JSON schema handed to the oracle for the report call.
func ResponseSchema() map[string]any {
	return tools.SchemaFor[payload]()
}
