// Package config loads the vqueue command-line configuration.
//
// The file is TOML. Load starts from Default, decodes the file over it,
// expands paths, applies environment overrides and validates the result.
// VQUEUE_BASE_PATH, when set, replaces queue.base_path.
package config
