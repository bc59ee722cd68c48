package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/wmheap/heap"
	"github.com/joshuapare/wmheap/layout"
)

func TestRunScript(t *testing.T) {
	resetFlags()
	path := writeScript(t, `
# two blocks, one grown
alloc a 100
alloc b 64 INTERNAL
write a "hello world"
realloc a 1KB 0
free b
check
free a
check
`)
	var out bytes.Buffer
	require.NoError(t, runScript(path, &out))

	got := out.String()
	require.Contains(t, got, "a = 0x20000010 in SRAM")
	require.Contains(t, got, "b = 0x")
	require.Equal(t, 2, strings.Count(got, "ok\n"))
}

func TestRunScript_Append(t *testing.T) {
	resetFlags()
	require.NoError(t, probeSize.Set("2MB"))
	path := writeScript(t, `
alloc big 1000000 SPIRAM
append PSRAM
alloc big 1000000 SPIRAM
stats
`)
	var out bytes.Buffer
	require.NoError(t, runScript(path, &out))

	got := out.String()
	require.Contains(t, got, "big = nil\n")
	require.Contains(t, got, "big = 0x30000010 in PSRAM\n")
	require.Contains(t, got, "    PSRAM    remain ")
}

func TestRunScript_AppendWithoutProbe(t *testing.T) {
	resetFlags()
	path := writeScript(t, "append PSRAM\n")
	err := runScript(path, &bytes.Buffer{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "script.txt:1")
}

func TestRunScript_Overrun(t *testing.T) {
	resetFlags()
	tracing = true
	poison = "comprehensive"
	path := writeScript(t, `alloc a 20
write a 0123456789012345678901
free a
`)
	var out bytes.Buffer
	err := runScript(path, &out)
	require.Error(t, err)
	require.Contains(t, err.Error(), "script.txt:3")
	require.Contains(t, out.String(), "corruption detected 0x20000020 in script.txt:1 size 56")
}

func TestRunScript_KeepGoing(t *testing.T) {
	resetFlags()
	runKeepGoing = true
	path := writeScript(t, `frobnicate
free nobody
alloc a 8
`)
	var out bytes.Buffer
	err := runScript(path, &out)
	require.EqualError(t, err, "2 line(s) failed")
	require.Contains(t, out.String(), `script.txt:1: unknown command "frobnicate"`)
	require.Contains(t, out.String(), "script.txt:2: nobody is not bound")
	require.Contains(t, out.String(), "a = 0x")
}

func TestRunScript_ReallocNoMemory(t *testing.T) {
	resetFlags()
	path := writeScript(t, `alloc a 100
realloc a 100MB
`)
	var out bytes.Buffer
	err := runScript(path, &out)
	require.ErrorIs(t, err, heap.ErrNoMemory)
	require.Contains(t, err.Error(), "script.txt:2")

	// The old block survives a failed realloc.
	resetFlags()
	runKeepGoing = true
	path = writeScript(t, `alloc a 100
realloc a 100MB
free a
check
`)
	out.Reset()
	require.EqualError(t, runScript(path, &out), "1 line(s) failed")
	require.Contains(t, out.String(), "kept 0x20000010")
	require.Contains(t, out.String(), "ok\n")
}

func TestRunScript_GoBacking(t *testing.T) {
	resetFlags()
	backing = "go"
	path := writeScript(t, "alloc a 100\ncheck\n")
	var out bytes.Buffer
	require.NoError(t, runScript(path, &out))
	require.Contains(t, out.String(), "a = 0x20000010 in SRAM")

	backing = "shm"
	require.ErrorContains(t, runScript(path, &out), `unknown backing "shm"`)
}

func TestVersion(t *testing.T) {
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	require.Equal(t, versionText(), out.String())

	out.Reset()
	rootCmd.SetArgs([]string{"--version"})
	require.NoError(t, rootCmd.Execute())
	require.Equal(t, versionText(), out.String(), "--version and the version command agree")
}

func TestLayoutCommand(t *testing.T) {
	resetFlags()
	output, err := captureOutput(t, runLayout)
	require.NoError(t, err)
	require.Contains(t, output, "Board: w800")
	require.Contains(t, output, "131,072")
	require.Contains(t, output, "4-byte tail reserve")
	require.Contains(t, output, "deferred")

	layoutYAML = true
	output, err = captureOutput(t, runLayout)
	require.NoError(t, err)
	l, err := layout.Parse([]byte(output))
	require.NoError(t, err)
	require.Equal(t, layout.W800(), l)
}

func TestStatsCommand(t *testing.T) {
	resetFlags()
	require.NoError(t, probeSize.Set("1MB"))
	statsAppend = []string{"PSRAM"}
	output, err := captureOutput(t, runStats)
	require.NoError(t, err)
	require.Contains(t, output, "heap remain ")
	require.Contains(t, output, "PSRAM")
	require.Contains(t, output, "0 allocations, 0 frees")
}
