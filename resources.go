// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package flowbird

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// Resource categories, each deployed into its own directory under the root
const (
	MediaDir        = "media"
	SituationsDir   = "situations"
	TranslationsDir = "translations"
)

// ResourceFiles lists the files of each category to deploy
type ResourceFiles struct {
	Media        []string
	Situations   []string
	Translations []string
}

func (r ResourceFiles) byCategory() []resourceCategory {
	return []resourceCategory{
		{dir: MediaDir, names: r.Media},
		{dir: SituationsDir, names: r.Situations},
		{dir: TranslationsDir, names: r.Translations},
	}
}

type resourceCategory struct {
	dir   string
	names []string
}

// Deployer copies the feedback resources the vendor UI needs out of Source
// into Root. A category whose target directory already holds files is left
// untouched, so deployment is a one-time operation per device.
type Deployer struct {
	// Source holds <category>/<name> files
	Source fs.FS
	// Root is the directory receiving the categories
	Root string
}

// Dir returns the target directory of a category
func (d *Deployer) Dir(category string) string {
	return filepath.Join(d.Root, category)
}

// Deploy copies every listed file. It returns the number of files written.
func (d *Deployer) Deploy(files ResourceFiles) (int, error) {
	if d.Source == nil {
		return 0, errors.New("resource deployer has no source")
	}

	written := 0
	for _, category := range files.byCategory() {
		if len(category.names) == 0 {
			continue
		}
		dir := d.Dir(category.dir)
		populated, err := hasEntries(dir)
		if err != nil {
			return written, err
		}
		if populated {
			Debugf("resources: %s already deployed, skipping", dir)
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return written, fmt.Errorf("failed to create resource directory %s: %w", dir, err)
		}
		for _, name := range category.names {
			if err := d.copyFile(path.Join(category.dir, name), filepath.Join(dir, name)); err != nil {
				return written, err
			}
			written++
		}
		Debugf("resources: deployed %d files into %s", len(category.names), dir)
	}
	return written, nil
}

func (d *Deployer) copyFile(src, dst string) error {
	in, err := d.Source.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open resource %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst) //nolint:gosec // dst is built from the configured root
	if err != nil {
		return fmt.Errorf("failed to create resource %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy resource %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to write resource %s: %w", dst, err)
	}
	return nil
}

func hasEntries(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read resource directory %s: %w", dir, err)
	}
	return len(entries) > 0, nil
}
