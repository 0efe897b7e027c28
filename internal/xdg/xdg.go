// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

// Package xdg locates formgate's config file under the XDG Base Directory
// layout.
package xdg

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"
)

const appName = "formgate"

// ConfigFileName is the file looked up in each config directory.
const ConfigFileName = "config.yaml"

// defaultSystemDirs is used when XDG_CONFIG_DIRS is unset.
const defaultSystemDirs = "/etc/xdg"

// ConfigDir returns the per-user config directory:
// $XDG_CONFIG_HOME/formgate, or ~/.config/formgate.
func ConfigDir() (string, error) {
	if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
		return filepath.Join(base, appName), nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		return "", oops.Code("XDG_NO_HOME").Errorf("neither XDG_CONFIG_HOME nor HOME is set")
	}
	return filepath.Join(home, ".config", appName), nil
}

// SearchDirs returns the config directories in lookup order: the user
// directory first, then each entry of XDG_CONFIG_DIRS. Relative entries are
// skipped.
func SearchDirs() []string {
	var dirs []string
	if dir, err := ConfigDir(); err == nil {
		dirs = append(dirs, dir)
	}

	system := os.Getenv("XDG_CONFIG_DIRS")
	if system == "" {
		system = defaultSystemDirs
	}
	for _, base := range strings.Split(system, string(os.PathListSeparator)) {
		if filepath.IsAbs(base) {
			dirs = append(dirs, filepath.Join(base, appName))
		}
	}
	return dirs
}

// DefaultConfigFile returns the first config.yaml found in SearchDirs. The
// boolean is false when none exists.
func DefaultConfigFile() (string, bool) {
	for _, dir := range SearchDirs() {
		path := filepath.Join(dir, ConfigFileName)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, true
		}
	}
	return "", false
}
