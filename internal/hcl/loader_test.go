package hcl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/blockgrid/internal/config"
	"github.com/vk/blockgrid/internal/ctxlog"
	"github.com/vk/blockgrid/internal/memory"
	"github.com/zclconf/go-cty/cty"
)

func testCtx() context.Context {
	return ctxlog.Discard(context.Background())
}

// writeFiles writes name -> content under a temporary directory and
// returns it.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestLoader_Load(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := writeFiles(t, map[string]string{
		"a_engine.hcl": `
			program = "diamond"

			engine {
				workers         = 2
				default_timeout = "30s"
			}

			planner {
				optimization = "aggressive"
				cpu          = 2
			}

			memory {
				pool {
					block_size = 512
					blocks     = 8
				}
			}
		`,
		"nested/b_vars.hcl": `
			cache {
				backend = "memory"
				ttl     = "5m"
			}

			variable "x" {
				type    = number
				default = "7"
			}

			variable "user" {
				type = object({
					name = string
					tags = list(string)
				})
				default = {
					name = "ada"
					tags = ["a", "b"]
				}
			}

			variable "declared_only" {
				type = string
			}
		`,
	})

	// --- Act ---
	m, err := NewLoader().Load(testCtx(), dir)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "diamond", m.Program)
	assert.Equal(t, 2, m.Engine.Workers)
	assert.Equal(t, 30*time.Second, m.Engine.DefaultTimeout)
	assert.Equal(t, config.Default().Engine.Grace, m.Engine.Grace, "unset fields keep their defaults")
	assert.Equal(t, "aggressive", m.Planner.Optimization)
	assert.Equal(t, 2.0, m.Planner.CPU)
	assert.Equal(t, []memory.PoolConfig{{BlockSize: 512, Blocks: 8}}, m.Memory.Classes)
	assert.Equal(t, "memory", m.Cache.Backend)
	assert.Equal(t, 5*time.Minute, m.Cache.TTL)

	require.Contains(t, m.Variables, "x")
	assert.True(t, m.Variables["x"].Equals(cty.NumberIntVal(7)).True(), "defaults convert to the declared type")

	wantUser := cty.ObjectVal(map[string]cty.Value{
		"name": cty.StringVal("ada"),
		"tags": cty.ListVal([]cty.Value{cty.StringVal("a"), cty.StringVal("b")}),
	})
	assert.True(t, m.Variables["user"].RawEquals(wantUser), "got %#v", m.Variables["user"])
	assert.NotContains(t, m.Variables, "declared_only")
}

func TestLoader_LaterFilesOverride(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string]string{
		"1.hcl": `engine { workers = 2 }`,
		"2.hcl": `engine { grace = "1s" }`,
	})

	m, err := NewLoader().Load(testCtx(), filepath.Join(dir, "1.hcl"), filepath.Join(dir, "2.hcl"))
	require.NoError(t, err)

	want := config.Default().Engine
	want.Workers = 2
	want.Grace = time.Second
	if diff := cmp.Diff(want, m.Engine); diff != "" {
		t.Errorf("engine config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoader_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "syntax", content: `engine {`, wantErr: "failed to parse"},
		{name: "unknown block", content: `unknown {}`, wantErr: "failed to decode"},
		{name: "bad duration", content: `engine { grace = "soon" }`, wantErr: "engine.grace"},
		{name: "bad level", content: `planner { optimization = "max" }`, wantErr: "invalid configuration"},
		{name: "bad backend", content: `cache { backend = "redis" }`, wantErr: "invalid configuration"},
		{name: "negative workers", content: `engine { workers = -1 }`, wantErr: "Workers"},
		{name: "empty pool", content: `memory {
			pool {
				block_size = 0
				blocks     = 1
			}
		}`, wantErr: "BlockSize"},
		{name: "default of wrong type", content: `variable "n" {
			type    = number
			default = "seven"
		}`, wantErr: "variable 'n'"},
		{name: "unknown type", content: `variable "n" { type = decimal }`, wantErr: "unknown primitive type"},
		{name: "any in collection", content: `variable "n" { type = list(any) }`, wantErr: "cannot contain type 'any'"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			dir := writeFiles(t, map[string]string{"main.hcl": tc.content})
			_, err := NewLoader().Load(testCtx(), dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}

	t.Run("missing path", func(t *testing.T) {
		t.Parallel()
		_, err := NewLoader().Load(testCtx(), filepath.Join(t.TempDir(), "nope.hcl"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("wrong extension", func(t *testing.T) {
		t.Parallel()
		dir := writeFiles(t, map[string]string{"main.json": `{}`})
		_, err := NewLoader().Load(testCtx(), filepath.Join(dir, "main.json"))
		assert.ErrorContains(t, err, ".hcl extension")
	})
}

func TestLoader_NoPathsGivesDefaults(t *testing.T) {
	m, err := NewLoader().Load(testCtx())
	require.NoError(t, err)
	assert.Equal(t, config.Default(), m)
}
