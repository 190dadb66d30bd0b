package bytecode

import (
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// SourceLocation maps a code offset back to the source position it was
// assembled from.
type SourceLocation struct {
	File   string `cbor:"file"`
	Line   int    `cbor:"line"`
	Column int    `cbor:"col"`
}

func (loc SourceLocation) String() string {
	return fmt.Sprintf("%s:%d:%d", loc.File, loc.Line, loc.Column)
}

// DebugInfo is the optional source-map sidecar written next to an image.
// The image format itself carries no source locations; the debugger loads
// this when present and degrades gracefully when it is not.
type DebugInfo struct {
	Locations map[uint32]SourceLocation `cbor:"locations"`
}

// NewDebugInfo creates an empty debug-info map.
func NewDebugInfo() *DebugInfo {
	return &DebugInfo{Locations: make(map[uint32]SourceLocation)}
}

// Add records the source location for a code offset.
func (d *DebugInfo) Add(offset uint32, loc SourceLocation) {
	d.Locations[offset] = loc
}

// Lookup returns the source location for a code offset, falling back to the
// nearest recorded offset at or before it.
func (d *DebugInfo) Lookup(offset uint32) (SourceLocation, bool) {
	if d == nil || len(d.Locations) == 0 {
		return SourceLocation{}, false
	}
	if loc, ok := d.Locations[offset]; ok {
		return loc, true
	}

	offsets := make([]uint32, 0, len(d.Locations))
	for off := range d.Locations {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	var best uint32
	found := false
	for _, off := range offsets {
		if off > offset {
			break
		}
		best = off
		found = true
	}
	if !found {
		return SourceLocation{}, false
	}
	return d.Locations[best], true
}

// Encode serializes the debug info with CBOR.
func (d *DebugInfo) Encode() ([]byte, error) {
	data, err := cbor.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding debug info: %w", err)
	}
	return data, nil
}

// DecodeDebugInfo decodes a CBOR debug-info sidecar.
func DecodeDebugInfo(data []byte) (*DebugInfo, error) {
	var d DebugInfo
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decoding debug info: %w", err)
	}
	if d.Locations == nil {
		d.Locations = make(map[uint32]SourceLocation)
	}
	return &d, nil
}

// DebugPath returns the sidecar path for an image path.
func DebugPath(imagePath string) string {
	return imagePath + ".dbg"
}
