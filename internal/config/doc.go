// Package config handles configuration loading for findjob.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults; running without a
// config file uses Default().
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	api:
//	  base_url: "${FINDJOB_API_URL}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	api:
//	  timeout: "30s"
//
// Supported units: ns, us, ms, s, m, h. A zero or missing timeout leaves the
// HTTP client without a deadline, which streaming responses require.
//
// # Configuration Sections
//
// Backend service:
//
//	api:
//	  base_url: "http://localhost:8000"
//	  timeout: "30s"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
