package mavlink

const crcInit uint16 = 0xFFFF

// crcAccumulate folds one byte into a CRC-16/MCRF4XX (X.25) checksum.
func crcAccumulate(b byte, crc uint16) uint16 {
	tmp := b ^ byte(crc&0xFF)
	tmp ^= tmp << 4
	return (crc >> 8) ^ (uint16(tmp) << 8) ^ (uint16(tmp) << 3) ^ (uint16(tmp) >> 4)
}

// Checksum computes the X.25 checksum of p.
func Checksum(p []byte) uint16 {
	crc := crcInit
	for _, b := range p {
		crc = crcAccumulate(b, crc)
	}
	return crc
}

// frameChecksum computes the MAVLink frame checksum: X.25 over the header
// (without the magic byte) and payload, followed by the schema's CRC_EXTRA.
func frameChecksum(headerAndPayload []byte, crcExtra byte) uint16 {
	return crcAccumulate(crcExtra, Checksum(headerAndPayload))
}
