// Package file provides the TOML configuration store.
//
// Settings live in ~/.sercha-connect/config.toml as nested tables and are
// addressed with dot-notation keys ("scheduler.refresh_window"). Environment
// variables named SERCHA_CONNECT_<KEY> (dots become underscores, upper case)
// override file values without being written back.
package file
