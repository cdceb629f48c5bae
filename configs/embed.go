// Package configs provides the embedded configuration template.
//
// The template is written by `catalogmatch config init`, either as the
// user config (~/.config/catalogmatch/config.yaml) or, with --project, as
// .catalogmatch.yaml in the project directory. Its values mirror
// config.NewConfig, so an untouched file changes nothing.
package configs

import _ "embed"

// ConfigTemplate is the commented default configuration.
//
//go:embed config.example.yaml
var ConfigTemplate string
