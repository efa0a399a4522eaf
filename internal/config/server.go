package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
)

// ServerSettings are the portal credentials from the server's
// server-settings.json. Other fields in that file are ignored.
type ServerSettings struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// ReadServerSettings loads credentials from path. Both fields must be set.
func ReadServerSettings(path string) (ServerSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ServerSettings{}, fmt.Errorf("reading server settings: %w", err)
	}
	var s ServerSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return ServerSettings{}, fmt.Errorf("parsing server settings %s: %w", path, err)
	}
	if s.Username == "" || s.Token == "" {
		return ServerSettings{}, fmt.Errorf("%s must contain a non-empty username and token", path)
	}
	return s, nil
}

// DetectGameVersion reads the installed game version from
// <modsDir>/../data/base/info.json and returns it as major.minor.
func DetectGameVersion(modsDir string) (string, error) {
	infoPath := filepath.Join(modsDir, "..", "data", "base", "info.json")
	data, err := os.ReadFile(infoPath)
	if err != nil {
		return "", fmt.Errorf("reading game version (expected data/base/info.json next to the mods directory): %w", err)
	}

	var info struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return "", fmt.Errorf("parsing %s: %w", infoPath, err)
	}

	v, err := semver.NewVersion(info.Version)
	if err != nil {
		return "", fmt.Errorf("invalid version %q in %s: %w", info.Version, infoPath, err)
	}
	return fmt.Sprintf("%d.%d", v.Major(), v.Minor()), nil
}
