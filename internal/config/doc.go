// Package config loads, validates, and watches the mapwatch YAML
// configuration. Secrets are never stored in the file itself — fields ending
// in Env name the environment variable that holds the real value.
package config
