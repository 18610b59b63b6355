package gb

// Manifest is the opaque device manifest blob served by the local-node
// Control cport: a minimal Greybus manifest holding a descriptor header,
// one interface descriptor, and two string descriptors (vendor and
// product). Its length is the ground truth for GET_MANIFEST_SIZE; no
// other component interprets its contents.
var Manifest = []byte{
	0x3c, 0x00, 0x00, 0x01, 0x08, 0x00, 0x01, 0x00, 0x01, 0x02, 0x00, 0x00, 0x18, 0x00, 0x02,
	0x00, 0x11, 0x01, 0x41, 0x70, 0x42, 0x72, 0x69, 0x64, 0x67, 0x65, 0x20, 0x53, 0x56, 0x43,
	0x20, 0x4e, 0x6f, 0x64, 0x65, 0x00, 0x18, 0x00, 0x02, 0x00, 0x11, 0x02, 0x41, 0x70, 0x42,
	0x72, 0x69, 0x64, 0x67, 0x65, 0x20, 0x53, 0x56, 0x43, 0x20, 0x4e, 0x6f, 0x64, 0x65, 0x00,
}
