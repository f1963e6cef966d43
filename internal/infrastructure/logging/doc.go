// Package logging is the bridge's log/slog setup.
//
// Configured from the logging section:
//
//	logging:
//	  level: info      # debug | info | warn | error
//	  format: json     # json | text
//	  output: stdout   # stdout | stderr | file
//	  file: ""         # path when output is file
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
