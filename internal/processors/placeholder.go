package processors

// placeholderWebP is a minimal valid 1x1 black WebP. It is the last
// resort for thumbnail generation and the payload of placeholder
// encrypted artifacts, keeping every catalog row backed by a readable
// file.
var placeholderWebP = []byte{
	'R', 'I', 'F', 'F', 0x24, 0x00, 0x00, 0x00,
	'W', 'E', 'B', 'P', 'V', 'P', '8', ' ',
	0x18, 0x00, 0x00, 0x00, 0x30, 0x01, 0x00, 0x9d,
	0x01, 0x2a, 0x01, 0x00, 0x01, 0x00, 0x01, 0x40,
	0x25, 0xa4, 0x00, 0x03, 0x70, 0x00, 0xfe, 0xfb,
	0x94, 0x00, 0x00,
}
