// SPDX-License-Identifier: MPL-2.0

// Package config loads the engine configuration using Viper with CUE as the
// file format.
//
// Defaults are registered in Viper, an optional config.cue is validated
// against the embedded #Config schema and merged over them, and PROVISIO_*
// environment variables override both (PROVISIO_CONCURRENCY=8,
// PROVISIO_BACKENDS_SCRIPT_SHELL=native). The file is looked up at --config,
// then config.cue in ConfigDir ($PROVISIO_CONFIG_DIR, else
// $XDG_CONFIG_HOME/provisio or the platform equivalent), then ./provisio.cue.
package config
