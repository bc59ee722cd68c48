package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/wmheap/caps"
	"github.com/joshuapare/wmheap/heap"
)

const boardYAML = `
board: demo
regions:
  - name: SRAM
    start: 0x20000000
    size: 160KB
    caps: [DEFAULT, INTERNAL, EXEC]
    static_end: 0x20001000
  - name: DRAM
    start: "0x20028000"
    size: 131072
    caps: [default, internal]
    tail_reserve: 4
  - name: PSRAM
    start: 0x30000000
    size: 8MB
    caps: [DEFAULT, SPIRAM]
    deferred: true
`

func Test_Parse(t *testing.T) {
	l, err := Parse([]byte(boardYAML))
	require.NoError(t, err)
	require.Equal(t, "demo", l.Board)
	require.Len(t, l.Regions, 3)

	sram := l.Regions[0]
	assert.Equal(t, Addr(0x20000000), sram.Start)
	assert.Equal(t, Size(160<<10), sram.Size)
	assert.Equal(t, Addr(0x20001000), sram.StaticEnd)

	dram, ok := l.Region("DRAM")
	require.True(t, ok)
	assert.Equal(t, Addr(0x20028000), dram.Start)
	assert.Equal(t, Size(4), dram.TailReserve)

	psram, _ := l.Region("PSRAM")
	assert.True(t, psram.Deferred)
	assert.Equal(t, Size(8<<20), psram.Size)

	_, ok = l.Region("FLASH")
	assert.False(t, ok)
}

func Test_Specs(t *testing.T) {
	l, err := Parse([]byte(boardYAML))
	require.NoError(t, err)

	specs, err := l.Specs()
	require.NoError(t, err)
	require.Equal(t, []heap.RegionSpec{
		{Name: "SRAM", Start: 0x20000000, Size: 160 << 10, Caps: caps.Default | caps.Internal | caps.Exec},
		{Name: "DRAM", Start: 0x20028000, Size: 128 << 10, Caps: caps.Default | caps.Internal, TailReserve: 4},
		{Name: "PSRAM", Start: 0x30000000, Size: 8 << 20, Caps: caps.Default | caps.SPIRAM, Deferred: true},
	}, specs)
	require.Equal(t, heap.LinkerMap{"SRAM": 0x20001000}, l.Linker())
}

func Test_Parse_Rejects(t *testing.T) {
	cases := map[string]string{
		"empty":          ``,
		"no regions":     "board: x\n",
		"unknown field":  "regions:\n  - name: A\n    start: 0x1000\n    size: 1KB\n    caps: [DEFAULT]\n    colour: red\n",
		"unknown caps":   "regions:\n  - name: A\n    start: 0x1000\n    size: 1KB\n    caps: [FAST]\n",
		"no caps":        "regions:\n  - name: A\n    start: 0x1000\n    size: 1KB\n",
		"invalid caps":   "regions:\n  - name: A\n    start: 0x1000\n    size: 1KB\n    caps: [DEFAULT, INVALID]\n",
		"bad size":       "regions:\n  - name: A\n    start: 0x1000\n    size: lots\n    caps: [DEFAULT]\n",
		"bad address":    "regions:\n  - name: A\n    start: 0xZZ\n    size: 1KB\n    caps: [DEFAULT]\n",
		"duplicate":      "regions:\n  - {name: A, start: 0x1000, size: 1KB, caps: [DEFAULT]}\n  - {name: A, start: 0x9000, size: 1KB, caps: [DEFAULT]}\n",
		"unnamed":        "regions:\n  - {start: 0x1000, size: 1KB, caps: [DEFAULT]}\n",
		"wraps":          "regions:\n  - {name: A, start: 0xFFFFF000, size: 1MB, caps: [DEFAULT]}\n",
		"static outside": "regions:\n  - {name: A, start: 0x1000, size: 1KB, caps: [DEFAULT], static_end: 0x9000}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func Test_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte(boardYAML), 0o644))

	l, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "demo", l.Board)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func Test_MarshalRoundTrip(t *testing.T) {
	l, err := Parse([]byte(boardYAML))
	require.NoError(t, err)

	data, err := l.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "size: 160KB")
	assert.Contains(t, string(data), "caps: [DEFAULT, SPIRAM]")

	again, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, l, again)
}

func Test_ParseSize(t *testing.T) {
	cases := map[string]Size{
		"4":      4,
		"0x100":  0x100,
		"1_024":  1024,
		"288KB":  288 << 10,
		"2 MB":   2 << 20,
		"1.5KB":  1536,
	}
	for in, want := range cases {
		got, err := ParseSize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseSize("8GB")
	require.Error(t, err, "above 32 bits")
	_, err = ParseSize("-1")
	require.Error(t, err)
}

func Test_W800(t *testing.T) {
	l := W800()
	require.NoError(t, l.Validate())
	require.Equal(t, l, Builtin("w800"))

	cfg, err := l.Config()
	require.NoError(t, err)
	cfg.Prober = heap.ProberFunc(func(string) (uint32, error) { return 2 << 20, nil })

	a, err := heap.New(cfg)
	require.NoError(t, err)
	defer a.Close()

	st := a.Stats()
	require.Len(t, st.Regions, 3)
	assert.Equal(t, uint32(W800DRAMSize-W800RebootReasonSize), st.Regions[1].Size)
	assert.False(t, st.Regions[2].Active)

	require.True(t, a.Alloc(1_000_000, caps.SPIRAM).IsNil())
	require.NoError(t, a.Append("PSRAM"))
	p := a.Alloc(1_000_000, caps.SPIRAM)
	require.False(t, p.IsNil())
	name, _ := a.RegionOf(p)
	assert.Equal(t, "PSRAM", name)
	require.NoError(t, a.Check())

	require.Nil(t, Builtin("esp32"))
}
