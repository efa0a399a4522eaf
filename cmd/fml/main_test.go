package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/frederic-klein/fml/internal/config"
)

func runRoot(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Setenv("HOME", t.TempDir())
	t.Cleanup(func() {
		viper.Reset()
		cfgFile, gameVersion = "", ""
	})

	var out bytes.Buffer
	root := newRootCmd()
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestInitCommand_CustomConfigPath(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "custom", "fml.yml")

	// Act
	out, err := runRoot(t, "/srv/factorio/mods\n\n", "init", "--config", path)

	// Assert
	if err != nil {
		t.Fatalf("init --config %s: %v", path, err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("output %q does not name %s", out, path)
	}
	f, err := config.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	want := config.File{
		ModsDirPath:      "/srv/factorio/mods",
		ServerConfigPath: "/opt/factorio/config/server-settings.json",
	}
	if f != want {
		t.Errorf("written config = %+v, want %+v", f, want)
	}
}

func TestListCommand_MissingConfigPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yml")

	if _, err := runRoot(t, "", "list", "--config", path); err == nil {
		t.Errorf("list --config %s: error = nil, want missing file error", path)
	}
}
