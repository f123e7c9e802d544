// Package checkpoint keeps the numbered history of model snapshots of a run.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// ErrNotFound is returned by Restore when the directory holds no checkpoint.
var ErrNotFound = errors.New("no checkpoint found")

// ErrExists is returned by Save when the numbered checkpoint is already present.
var ErrExists = errors.New("checkpoint already exists")

// StateFile lists the latest checkpoint and the history, relative to the directory.
const StateFile = "checkpoint"

// Saver persists runtime variables under a checkpoint prefix.
type Saver interface {
	Save(prefix string) error
	Restore(prefix string) error
}

// Manager saves and restores the checkpoints of one model name in one directory.
type Manager struct {
	fs    afero.Fs
	saver Saver
	dir   string
	name  string
	re    *regexp.Regexp
}

// New binds a Manager to saver. Checkpoints are written as {dir}/{name}-{iteration}.
func New(fs afero.Fs, saver Saver, dir, name string) *Manager {
	return &Manager{
		fs:    fs,
		saver: saver,
		dir:   dir,
		name:  name,
		re:    regexp.MustCompile(`^` + regexp.QuoteMeta(name) + `-(\d+)(\..+)?$`),
	}
}

// Path is the checkpoint prefix without the iteration suffix.
func (m *Manager) Path() string {
	return filepath.Join(m.dir, m.name)
}

// Prefix is the checkpoint prefix of iteration.
func (m *Manager) Prefix(iteration int) string {
	return fmt.Sprintf("%s-%d", m.Path(), iteration)
}

// Save writes the checkpoint of iteration and records it as the latest.
// Existing checkpoints are never overwritten.
func (m *Manager) Save(iteration int) (string, error) {
	its, err := m.iterations()
	if err != nil {
		return "", err
	}
	prefix := m.Prefix(iteration)
	for _, it := range its {
		if it == iteration {
			return "", errors.Wrapf(ErrExists, "%s", prefix)
		}
	}
	if err := m.fs.MkdirAll(m.dir, 0755); err != nil {
		return "", errors.Wrapf(err, "creating %s", m.dir)
	}
	if err := m.saver.Save(prefix); err != nil {
		return "", err
	}
	if err := m.writeState(append(its, iteration)); err != nil {
		return "", err
	}
	return prefix, nil
}

// Latest returns the prefix of the highest iteration, or ErrNotFound.
func (m *Manager) Latest() (string, int, error) {
	its, err := m.iterations()
	if err != nil {
		return "", 0, err
	}
	if len(its) == 0 {
		return "", 0, errors.Wrapf(ErrNotFound, "in %s for %s", m.dir, m.name)
	}
	latest := its[len(its)-1]
	return m.Prefix(latest), latest, nil
}

// Restore loads the latest checkpoint into the runtime and returns its
// prefix and iteration.
func (m *Manager) Restore() (string, int, error) {
	prefix, it, err := m.Latest()
	if err != nil {
		return "", 0, err
	}
	if err := m.saver.Restore(prefix); err != nil {
		return "", 0, errors.Wrapf(err, "restoring %s", prefix)
	}
	return prefix, it, nil
}

// iterations lists, ascending and without duplicates, the iterations found in
// the state file and in the directory.
func (m *Manager) iterations() ([]int, error) {
	seen := map[int]bool{}

	names, err := m.readState()
	if err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(m.fs, m.dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "listing %s", m.dir)
	}
	for _, e := range entries {
		names = append(names, e.Name())
	}

	for _, name := range names {
		match := m.re.FindStringSubmatch(filepath.Base(name))
		if match == nil {
			continue
		}
		it, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		seen[it] = true
	}

	its := make([]int, 0, len(seen))
	for it := range seen {
		its = append(its, it)
	}
	sort.Ints(its)
	return its, nil
}

func (m *Manager) statePath() string {
	return filepath.Join(m.dir, StateFile)
}

// readState returns every path listed in the state file.
func (m *Manager) readState() ([]string, error) {
	data, err := afero.ReadFile(m.fs, m.statePath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading checkpoint state")
	}
	var paths []string
	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "model_checkpoint_path", "all_model_checkpoint_paths":
		default:
			continue
		}
		path, err := strconv.Unquote(strings.TrimSpace(value))
		if err != nil {
			return nil, errors.Wrapf(err, "malformed checkpoint state line %q", line)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// writeState records its, ascending, with the last one as the latest.
func (m *Manager) writeState(its []int) error {
	sort.Ints(its)
	var b strings.Builder
	fmt.Fprintf(&b, "model_checkpoint_path: %q\n", fmt.Sprintf("%s-%d", m.name, its[len(its)-1]))
	for _, it := range its {
		fmt.Fprintf(&b, "all_model_checkpoint_paths: %q\n", fmt.Sprintf("%s-%d", m.name, it))
	}
	err := afero.WriteFile(m.fs, m.statePath(), []byte(b.String()), 0644)
	return errors.Wrapf(err, "writing checkpoint state")
}
