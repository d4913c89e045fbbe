// Package config defines the dirstore CLI configuration.
//
// Values are layered by confloader: built-in defaults, then the YAML file
// (default $XDG_CONFIG_HOME/dirstore/config.yaml), then DIRSTORE_*
// environment variables, then flags given on the command line.
//
// Example file:
//
//	dir: /var/lib/app/state
//	codec: json
//	atomic: true
//	log:
//	  level: debug
//	backup:
//	  retention_count: 10
package config
