// Package serialization stores named buffers in the NDBF container format.
//
// Layout:
//
//	[0x00-0x03: Magic "NDBF"]
//	[0x04-0x07: Version (uint32 LE)]
//	[0x08-0x0B: Flags (uint32 LE)]
//	[0x0C-0x0F: Reserved]
//	[0x10-0x17: JSON header size (uint64 LE)]
//	[0x18-0x1F: Data section size (uint64 LE)]
//	[0x20-0x3F: SHA-256 of the data section]
//	[JSON header]
//	[Data section, 64-byte aligned; every buffer starts 64-byte aligned]
//
// Numeric buffers are stored as their little-endian elements. UTF buffers are
// stored in the string layout (count, offsets, payload) and read back with
// the same encoding.
//
// Example:
//
//	w, err := serialization.Create("weights.ndbf")
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//	if err := w.WriteBuffers(map[string]*buffer.Buffer{"w": weights}, nil); err != nil {
//	    return err
//	}
//
//	r, err := serialization.NewMmapReader("weights.ndbf", serialization.ReaderOptions{})
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	weights, err := r.Buffer("w")
package serialization
