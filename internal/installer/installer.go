// Package installer drives a full install: resolve, download each plan
// entry in order, enable the result in mod-list.json.
package installer

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/frederic-klein/fml/internal/downloader"
	"github.com/frederic-klein/fml/internal/inventory"
	"github.com/frederic-klein/fml/internal/modlist"
	"github.com/frederic-klein/fml/internal/resolver"
)

// ErrAlreadyInstalled is returned when the requested mod is already present.
var ErrAlreadyInstalled = errors.New("already installed")

// Result summarizes a successful install.
type Result struct {
	ModName         string
	DependencyCount int
	Installed       []string
	Inventory       []inventory.InstalledMod // rescanned after install
}

// IncompleteError reports how far an install got before failing. Archives
// acquired before the failure stay in the mods directory.
type IncompleteError struct {
	ModName   string
	Completed int
	Total     int
	Err       error
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("installing %s: %d of %d mods installed before failure: %v", e.ModName, e.Completed, e.Total, e.Err)
}

func (e *IncompleteError) Unwrap() error {
	return e.Err
}

// Installer installs mods into one mods directory. It is not safe for
// concurrent use because it consumes the queue's shared result stream.
type Installer struct {
	resolver    *resolver.Resolver
	queue       *downloader.Queue
	modsDir     string
	gameVersion string
	logger      *log.Logger
}

// New creates an installer for modsDir targeting gameVersion.
func New(res *resolver.Resolver, queue *downloader.Queue, modsDir, gameVersion string, logger *log.Logger) *Installer {
	return &Installer{
		resolver:    res,
		queue:       queue,
		modsDir:     modsDir,
		gameVersion: gameVersion,
		logger:      logger,
	}
}

// Install resolves name against the current inventory and acquires the
// plan in order. Acquisition stops at the first failure.
func (i *Installer) Install(ctx context.Context, name string) (*Result, error) {
	mods, err := inventory.ReadInstalled(i.modsDir, i.logger)
	if err != nil {
		return nil, err
	}
	state := inventory.State(mods)
	if v, ok := state[name]; ok {
		return nil, fmt.Errorf("%s %s: %w", name, v, ErrAlreadyInstalled)
	}

	plan, err := i.resolver.Resolve(ctx, name, i.gameVersion, state)
	if err != nil {
		return nil, err
	}
	i.logger.Info("Resolved", "mod", name, "plan", plan.Names())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var installed []string
	for _, e := range plan.Entries {
		i.queue.Enqueue(ctx, downloader.Job{Name: e.Name, Release: e.Release, DestDir: i.modsDir})
		res, ok := <-i.queue.Results()
		if !ok {
			return nil, &IncompleteError{ModName: name, Completed: len(installed), Total: plan.Len(), Err: errors.New("download queue closed")}
		}
		if res.Err != nil {
			return nil, &IncompleteError{ModName: name, Completed: len(installed), Total: plan.Len(), Err: fmt.Errorf("%s: %w", e.Name, res.Err)}
		}
		i.logger.Debug("Installed", "mod", e.Name, "version", e.Release.Version, "file", res.Path)
		installed = append(installed, e.Name)
	}

	list, err := modlist.LoadOrCreate(i.modsDir)
	if err != nil {
		return nil, fmt.Errorf("loading mod list: %w", err)
	}
	for _, n := range installed {
		list.SetEnabled(n, true)
	}
	if err := list.Save(i.modsDir); err != nil {
		return nil, err
	}

	rescanned, err := inventory.ReadInstalled(i.modsDir, i.logger)
	if err != nil {
		return nil, fmt.Errorf("rescanning mods: %w", err)
	}

	return &Result{
		ModName:         name,
		DependencyCount: plan.Len() - 1,
		Installed:       installed,
		Inventory:       rescanned,
	}, nil
}
