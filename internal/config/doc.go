// Package config provides centralized configuration management for the
// InjAgent runtime. Secrets such as the custody passphrase and the API auth
// token are referenced by environment variable name only and are resolved at
// startup, never stored in the configuration file itself.
package config
