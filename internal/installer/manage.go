package installer

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/frederic-klein/fml/internal/inventory"
	"github.com/frederic-klein/fml/internal/mod"
	"github.com/frederic-klein/fml/internal/modlist"
)

// ErrBaseMod is returned when trying to remove or disable the base game.
var ErrBaseMod = errors.New("the base mod cannot be changed")

// Find returns the installed archive for name.
func Find(modsDir, name string, logger *log.Logger) (inventory.InstalledMod, error) {
	mods, err := inventory.ReadInstalled(modsDir, logger)
	if err != nil {
		return inventory.InstalledMod{}, err
	}
	for _, m := range mods {
		if m.Name == name {
			return m, nil
		}
	}
	return inventory.InstalledMod{}, fmt.Errorf("%s: %w", name, inventory.ErrNotInstalled)
}

// Remove deletes name's archive and drops it from mod-list.json.
func Remove(modsDir, name string, logger *log.Logger) (inventory.InstalledMod, error) {
	if name == mod.BaseName {
		return inventory.InstalledMod{}, ErrBaseMod
	}
	m, err := Find(modsDir, name, logger)
	if err != nil {
		return inventory.InstalledMod{}, err
	}
	if err := inventory.Delete(modsDir, m.Name, m.Version); err != nil {
		return inventory.InstalledMod{}, err
	}

	list, err := modlist.LoadOrCreate(modsDir)
	if err != nil {
		return m, fmt.Errorf("loading mod list: %w", err)
	}
	list.Remove(name)
	if err := list.Save(modsDir); err != nil {
		return m, err
	}
	logger.Info("Removed", "mod", name, "version", m.Version)
	return m, nil
}

// SetEnabled flips name in mod-list.json. Only installed mods can be enabled.
func SetEnabled(modsDir, name string, enabled bool, logger *log.Logger) error {
	if name == mod.BaseName && !enabled {
		return ErrBaseMod
	}
	if enabled && name != mod.BaseName {
		if _, err := Find(modsDir, name, logger); err != nil {
			return err
		}
	}

	list, err := modlist.LoadOrCreate(modsDir)
	if err != nil {
		return fmt.Errorf("loading mod list: %w", err)
	}
	list.SetEnabled(name, enabled)
	return list.Save(modsDir)
}
