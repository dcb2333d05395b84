package cmd

import (
	"github.com/crytic/provenance/compilation"
	"github.com/crytic/provenance/config"
)

// DefaultProjectConfigFilename describes the default config filename for a given project folder.
const DefaultProjectConfigFilename = config.DefaultProjectConfigFilename

// DefaultCompilerBackend describes the default compiler backend to use if one is not provided
var DefaultCompilerBackend = compilation.DefaultCompilerBackend()
