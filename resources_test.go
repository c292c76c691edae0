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
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResourceSource() fstest.MapFS {
	return fstest.MapFS{
		"media/granted.wav":         {Data: []byte("granted")},
		"media/denied.wav":          {Data: []byte("denied")},
		"situations/default.yaml":   {Data: []byte("situations: {}\n")},
		"translations/fr.properties": {Data: []byte("hunting=Présentez votre carte\n")},
	}
}

func TestDeployer_CopiesEveryCategory(t *testing.T) {
	t.Parallel()
	deployer := &Deployer{Source: testResourceSource(), Root: t.TempDir()}

	n, err := deployer.Deploy(ResourceFiles{
		Media:        []string{"granted.wav", "denied.wav"},
		Situations:   []string{"default.yaml"},
		Translations: []string{"fr.properties"},
	})

	require.NoError(t, err)
	assert.Equal(t, 4, n)
	content, err := os.ReadFile(filepath.Join(deployer.Dir(MediaDir), "denied.wav"))
	require.NoError(t, err)
	assert.Equal(t, "denied", string(content))
}

func TestDeployer_SkipsPopulatedCategory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, MediaDir), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, MediaDir, "existing.wav"), []byte("x"), 0o600))
	deployer := &Deployer{Source: testResourceSource(), Root: root}

	n, err := deployer.Deploy(ResourceFiles{
		Media:      []string{"granted.wav"},
		Situations: []string{"default.yaml"},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = os.Stat(filepath.Join(root, MediaDir, "granted.wav"))
	assert.True(t, os.IsNotExist(err))
}

func TestDeployer_SecondDeployIsNoop(t *testing.T) {
	t.Parallel()
	deployer := &Deployer{Source: testResourceSource(), Root: t.TempDir()}
	files := ResourceFiles{Media: []string{"granted.wav"}}

	_, err := deployer.Deploy(files)
	require.NoError(t, err)
	n, err := deployer.Deploy(files)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeployer_Errors(t *testing.T) {
	t.Parallel()

	_, err := (&Deployer{Root: t.TempDir()}).Deploy(ResourceFiles{Media: []string{"a"}})
	require.Error(t, err)

	_, err = (&Deployer{Source: testResourceSource(), Root: t.TempDir()}).Deploy(ResourceFiles{Media: []string{"nope.wav"}})
	require.ErrorContains(t, err, "media/nope.wav")
}
