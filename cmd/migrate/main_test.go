package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	up, down, forced int
	version          uint
	dirty            bool
	err              error
	closed           bool
}

func (f *fakeMigrator) Up(steps int) error           { f.up = steps; return f.err }
func (f *fakeMigrator) Down(steps int) error         { f.down = steps; return f.err }
func (f *fakeMigrator) Version() (uint, bool, error) { return f.version, f.dirty, f.err }
func (f *fakeMigrator) Force(v int) error            { f.forced = v; return f.err }
func (f *fakeMigrator) Close() error                 { f.closed = true; return nil }

func run(t *testing.T, f *fakeMigrator, args ...string) (string, string, error) {
	t.Helper()
	var gotDir string
	cmd := newRootCmd(func(dir string) (migrator, error) {
		gotDir = dir
		return f, nil
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), gotDir, err
}

func TestUp(t *testing.T) {
	f := &fakeMigrator{}
	out, dir, err := run(t, f, "up", "--steps", "2", "--dir", "./db")
	require.NoError(t, err)
	assert.Equal(t, 2, f.up)
	assert.Equal(t, "./db", dir)
	assert.Contains(t, out, "applied")
	assert.True(t, f.closed)
}

func TestDown(t *testing.T) {
	f := &fakeMigrator{}
	_, _, err := run(t, f, "down")
	require.NoError(t, err)
	assert.Equal(t, 0, f.down)
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, &fakeMigrator{version: 2}, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Current migration version: 2")

	_, _, err = run(t, &fakeMigrator{version: 2, dirty: true}, "version")
	assert.ErrorContains(t, err, "dirty")
}

func TestForce(t *testing.T) {
	f := &fakeMigrator{}
	_, _, err := run(t, f, "force", "3")
	require.NoError(t, err)
	assert.Equal(t, 3, f.forced)

	_, _, err = run(t, &fakeMigrator{}, "force", "zero")
	assert.ErrorContains(t, err, "invalid version")

	_, _, err = run(t, &fakeMigrator{}, "force")
	assert.Error(t, err)
}

func TestErrorsPropagate(t *testing.T) {
	_, _, err := run(t, &fakeMigrator{err: errors.New("boom")}, "up")
	assert.ErrorContains(t, err, "boom")
}
