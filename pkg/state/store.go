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

package state

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/awslabs/aws-pause/pkg/errors"
	"github.com/awslabs/aws-pause/pkg/log"
	"github.com/awslabs/aws-pause/pkg/resource"
)

const (
	snapshotSuffix = ".json"
	tempSuffix     = ".tmp"
)

// ErrNotFound reports that no snapshot exists under a requested id.
var ErrNotFound = stderrors.New("snapshot not found")

func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrNotFound)
}

// Summary is the listing row for a stored snapshot, read without
// materializing the full resource set for the caller.
type Summary struct {
	ID                      string    `json:"snapshot_id"`
	Timestamp               time.Time `json:"timestamp"`
	Region                  string    `json:"region"`
	ResourceCount           int       `json:"resource_count"`
	EstimatedMonthlySavings float64   `json:"estimated_monthly_savings"`
}

// Store persists snapshots as one JSON document per id. Writes go through a
// sibling temp file and a rename so that a crash never leaves a partially
// written snapshot under its final name.
type Store struct {
	fs  afero.Fs
	dir string
}

func NewStore(fs afero.Fs, dir string) (*Store, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.State(fmt.Errorf("creating snapshot directory %s, %w", dir, err))
	}
	return &Store{fs: fs, dir: dir}, nil
}

// Dir returns the directory snapshots are stored under.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes the snapshot and returns the path it was stored at.
func (s *Store) Save(ctx context.Context, snapshot *resource.Snapshot) (string, error) {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", errors.State(fmt.Errorf("encoding snapshot %s, %w", snapshot.ID, err))
	}
	path := s.path(snapshot.ID)
	temp := path + tempSuffix
	if err := afero.WriteFile(s.fs, temp, data, 0o644); err != nil {
		return "", errors.State(fmt.Errorf("writing snapshot %s, %w", snapshot.ID, err))
	}
	if err := s.fs.Rename(temp, path); err != nil {
		if removeErr := s.fs.Remove(temp); removeErr != nil && !os.IsNotExist(removeErr) {
			err = multierr.Append(err, removeErr)
		}
		return "", errors.State(fmt.Errorf("persisting snapshot %s, %w", snapshot.ID, err))
	}
	log.FromContext(ctx).Infof("saved snapshot to %s", path)
	return path, nil
}

// Load reads a snapshot by id. A missing snapshot wraps ErrNotFound; an
// unparseable one is a state error.
func (s *Store) Load(ctx context.Context, id string) (*resource.Snapshot, error) {
	data, err := afero.ReadFile(s.fs, s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("snapshot %s, %w", id, ErrNotFound)
		}
		return nil, errors.State(fmt.Errorf("reading snapshot %s, %w", id, err))
	}
	snapshot := &resource.Snapshot{}
	if err := json.Unmarshal(data, snapshot); err != nil {
		return nil, errors.State(fmt.Errorf("snapshot %s is corrupted, %w", id, err))
	}
	log.FromContext(ctx).Debugf("loaded snapshot %s with %d resources", id, len(snapshot.Resources))
	return snapshot, nil
}

// LoadLatest returns the most recent snapshot, optionally restricted to
// snapshots whose primary region matches.
func (s *Store) LoadLatest(ctx context.Context, region string) (*resource.Snapshot, error) {
	summaries, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, summary := range summaries {
		if region != "" && summary.Region != region {
			continue
		}
		return s.Load(ctx, summary.ID)
	}
	return nil, fmt.Errorf("no snapshots found, %w", ErrNotFound)
}

// List returns summaries for every readable snapshot, newest first. Files
// that cannot be read or parsed are skipped with a warning.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, errors.State(fmt.Errorf("listing snapshots, %w", err))
	}
	summaries := []Summary{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), snapshotSuffix) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, err := afero.ReadFile(s.fs, path)
		if err != nil {
			log.FromContext(ctx).Warnf("failed to read snapshot %s, %s", path, err)
			continue
		}
		snapshot := &resource.Snapshot{}
		if err := json.Unmarshal(data, snapshot); err != nil {
			log.FromContext(ctx).Warnf("failed to read snapshot %s, %s", path, err)
			continue
		}
		summaries = append(summaries, Summary{
			ID:                      snapshot.ID,
			Timestamp:               snapshot.Timestamp,
			Region:                  snapshot.Region,
			ResourceCount:           len(snapshot.Resources),
			EstimatedMonthlySavings: snapshot.TotalEstimatedSavings,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Timestamp.Equal(summaries[j].Timestamp) {
			return summaries[i].ID > summaries[j].ID
		}
		return summaries[i].Timestamp.After(summaries[j].Timestamp)
	})
	return summaries, nil
}

// Delete removes a snapshot by id and reports whether it existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if err := s.fs.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.State(fmt.Errorf("deleting snapshot %s, %w", id, err))
	}
	log.FromContext(ctx).Infof("deleted snapshot %s", id)
	return true, nil
}

// Trim deletes all but the newest keep snapshots and returns how many were
// removed.
func (s *Store) Trim(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	summaries, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(summaries) <= keep {
		return 0, nil
	}
	removed := 0
	for _, summary := range summaries[keep:] {
		existed, err := s.Delete(ctx, summary.ID)
		if err != nil {
			return removed, err
		}
		if existed {
			removed++
		}
	}
	return removed, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+snapshotSuffix)
}
