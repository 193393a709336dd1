/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/imdario/mergo"
	"github.com/pelletier/go-toml/v2"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/awslabs/aws-pause/pkg/auth"
	"github.com/awslabs/aws-pause/pkg/errors"
	"github.com/awslabs/aws-pause/pkg/log"
	"github.com/awslabs/aws-pause/pkg/orchestration"
	"github.com/awslabs/aws-pause/pkg/resource"
)

const (
	dirName    = ".aws-pause"
	fileName   = "config.toml"
	tempSuffix = ".tmp"

	DefaultSnapshotRetention = 10
)

// Config holds the persisted defaults. Every field is optional; zero
// values mean "not set" and lose to built-ins, environment variables,
// and flags, in that order.
type Config struct {
	Regions           []string `toml:"regions,omitempty"`
	Kinds             []string `toml:"kinds,omitempty"`
	RoleARN           string   `toml:"role_arn,omitempty"`
	DiscoverWorkers   int      `toml:"discover_workers,omitempty"`
	MutateWorkers     int      `toml:"mutate_workers,omitempty"`
	SnapshotDir       string   `toml:"snapshot_dir,omitempty"`
	SnapshotRetention int      `toml:"snapshot_retention,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Kinds:             lo.Map(resource.Kinds(), func(k resource.Kind, _ int) string { return string(k) }),
		DiscoverWorkers:   orchestration.DefaultDiscoverWorkers,
		MutateWorkers:     orchestration.DefaultMutateWorkers,
		SnapshotRetention: DefaultSnapshotRetention,
	}
}

// Merge overlays the non-zero fields of overlay onto c.
func (c Config) Merge(overlay Config) Config {
	merged := c
	lo.Must0(mergo.Merge(&merged, overlay, mergo.WithOverride))
	return merged
}

func (c Config) Validate() error {
	var errs error
	if c.RoleARN != "" {
		errs = multierr.Append(errs, auth.ValidateRoleARN(c.RoleARN))
	}
	for _, region := range c.Regions {
		errs = multierr.Append(errs, auth.ValidateRegion(region))
	}
	for _, kind := range c.Kinds {
		if !lo.Contains(resource.Kinds(), resource.Kind(kind)) {
			errs = multierr.Append(errs, errors.Configurationf("unknown kind %q", kind))
		}
	}
	if c.DiscoverWorkers < 0 {
		errs = multierr.Append(errs, errors.Configurationf("discover workers must not be negative, got %d", c.DiscoverWorkers))
	}
	if c.MutateWorkers < 0 {
		errs = multierr.Append(errs, errors.Configurationf("mutate workers must not be negative, got %d", c.MutateWorkers))
	}
	if c.SnapshotRetention < 0 {
		errs = multierr.Append(errs, errors.Configurationf("snapshot retention must not be negative, got %d", c.SnapshotRetention))
	}
	return errs
}

// Dir returns the tool's home directory, ~/.aws-pause.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Configuration(fmt.Errorf("resolving home directory, %w", err))
	}
	return filepath.Join(home, dirName), nil
}

// DefaultSnapshotDir returns the snapshot directory under Dir().
func DefaultSnapshotDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "snapshots"), nil
}

// Manager reads and writes the config file under a directory.
type Manager struct {
	fs  afero.Fs
	dir string
}

func NewManager(fs afero.Fs, dir string) (*Manager, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Configuration(fmt.Errorf("creating config directory %s, %w", dir, err))
	}
	return &Manager{fs: fs, dir: dir}, nil
}

// Path returns the config file location.
func (m *Manager) Path() string {
	return filepath.Join(m.dir, fileName)
}

// Exists reports whether a config file has been written.
func (m *Manager) Exists() bool {
	ok, _ := afero.Exists(m.fs, m.Path())
	return ok
}

// Load reads and validates the config file. A missing file is not an
// error and yields the zero Config.
func (m *Manager) Load(ctx context.Context) (Config, error) {
	data, err := afero.ReadFile(m.fs, m.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, errors.Configuration(fmt.Errorf("reading config file %s, %w", m.Path(), err))
	}
	cfg := Config{}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Configuration(fmt.Errorf("config file %s is invalid, %w", m.Path(), err))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	log.FromContext(ctx).Debugf("loaded config from %s", m.Path())
	return cfg, nil
}

// Save validates and atomically persists the config file.
func (m *Manager) Save(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Configuration(fmt.Errorf("encoding config, %w", err))
	}
	path := m.Path()
	temp := path + tempSuffix
	if err := afero.WriteFile(m.fs, temp, data, 0o644); err != nil {
		return errors.Configuration(fmt.Errorf("writing config file %s, %w", path, err))
	}
	if err := m.fs.Rename(temp, path); err != nil {
		if removeErr := m.fs.Remove(temp); removeErr != nil && !os.IsNotExist(removeErr) {
			err = multierr.Append(err, removeErr)
		}
		return errors.Configuration(fmt.Errorf("persisting config file %s, %w", path, err))
	}
	log.FromContext(ctx).Infof("saved config to %s", path)
	return nil
}
