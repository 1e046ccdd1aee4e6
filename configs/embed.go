// Package configs provides embedded configuration templates.
//
// Templates are embedded at build time with //go:embed so they ship in
// every distribution (go install, binary releases). `codeatlas config
// init` writes the project template as .codeatlas.yaml.
package configs

import _ "embed"

// ProjectConfigTemplate is the commented template for project-level
// configuration, written by `codeatlas config init`.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
