package binary

// Magic is the 4 byte preamble (literally "\0asm") of the binary format
var Magic = []byte{0x00, 0x61, 0x73, 0x6D}

// Version is the only format version accepted, encoded as a fixed-width little-endian uint32 after Magic.
const Version = uint32(0x0b)
