package layout

// W800 memory map.
const (
	W800SRAMBase  = 0x20000000
	W800SRAMSize  = 160 << 10
	W800DRAMBase  = 0x20028000
	W800DRAMSize  = 128 << 10
	W800PSRAMBase = 0x30000000
	W800PSRAMMax  = 8 << 20

	// The last word of DRAM holds the reboot reason across resets.
	W800RebootReasonSize = 4
)

// W800 returns the built-in layout of the WinnerMicro W800. No static data
// bounds are set; callers that know where their image ends add them.
func W800() *Layout {
	return &Layout{
		Board: "w800",
		Regions: []Region{
			{
				Name:  "SRAM",
				Start: W800SRAMBase,
				Size:  W800SRAMSize,
				Caps:  []string{"DEFAULT", "INTERNAL", "EXEC", "SHARED"},
			},
			{
				Name:        "DRAM",
				Start:       W800DRAMBase,
				Size:        W800DRAMSize,
				Caps:        []string{"DEFAULT", "INTERNAL", "SHARED"},
				TailReserve: W800RebootReasonSize,
			},
			{
				Name:     "PSRAM",
				Start:    W800PSRAMBase,
				Size:     W800PSRAMMax,
				Caps:     []string{"DEFAULT", "SPIRAM"},
				Deferred: true,
			},
		},
	}
}

// Builtin returns the built-in layout for board, or nil.
func Builtin(board string) *Layout {
	switch board {
	case "w800", "W800":
		return W800()
	}
	return nil
}
