package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCalc_MemoryStore(t *testing.T) {
	// WHEN: computing a seeded surplus ship
	out, err := execute(t, "calc", "R002", "2024", "--db-driver", "memory", "--seed", "--log-level", "error")

	// THEN
	require.NoError(t, err, out)
	var got calcOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.Equal(t, "R002", got.ShipID)
	assert.Equal(t, "4871731200.00", got.CBGco2eq)
	assert.Equal(t, "0.00", got.BankedFromPriorYear)
	assert.Equal(t, "4871731200.00", got.AdjustedCBGco2eq)
}

func TestCalc_UnknownShip(t *testing.T) {
	_, err := execute(t, "calc", "NOPE", "2024", "--db-driver", "memory", "--log-level", "error")
	assert.Error(t, err)
}

func TestCalc_InvalidYear(t *testing.T) {
	_, err := execute(t, "calc", "R001", "soon", "--db-driver", "memory")
	assert.Error(t, err)
}

func TestSeed_SQLiteFileIsReusable(t *testing.T) {
	// GIVEN: a fresh SQLite file
	dsn := filepath.Join(t.TempDir(), "compliance.db")

	// WHEN: seeding twice
	out, err := execute(t, "seed", "--dsn", dsn, "--log-level", "error")
	require.NoError(t, err, out)
	out, err = execute(t, "seed", "--dsn", dsn, "--log-level", "error")
	require.NoError(t, err, out)

	// THEN: the second run found the routes already there
	assert.Contains(t, out, "5 routes in store")

	// AND: balances can be computed from the persisted routes
	out, err = execute(t, "calc", "R001", "2024", "--dsn", dsn, "--log-level", "error")
	require.NoError(t, err, out)
	assert.Contains(t, out, `"cbGco2eq": "-318336000.00"`)
}

func TestMigrate(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "compliance.db")
	out, err := execute(t, "migrate", "--dsn", dsn)
	require.NoError(t, err, out)
	assert.Contains(t, out, "schema ready (sqlite)")
	_, err = os.Stat(dsn)
	assert.NoError(t, err)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\ndatabase:\n  driver: memory\n"), 0o600))

	opts := &options{configPath: path}
	cmd := &cobra.Command{}
	cmd.Flags().IntVar(&opts.port, "port", 0, "")
	require.NoError(t, cmd.Flags().Set("port", "9100"))

	cfg, err := loadConfig(cmd, opts)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.False(t, cfg.Seed)
}

func TestLoadConfig_RejectsInvalid(t *testing.T) {
	_, err := execute(t, "calc", "R001", "2024", "--db-driver", "mysql")
	assert.Error(t, err)
}
