// Package config loads the HealthForce configuration shared by the terminal
// client and the local mock backend. Files may be JSON or YAML; missing
// fields fall back to development defaults.
package config
