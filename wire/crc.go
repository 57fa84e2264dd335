package wire

// CRC-16/XMODEM: polynomial 0x1021, initial value 0, no reflection.
const crc16Poly = 0x1021

var crc16Table = func() [256]uint16 {
	var t [256]uint16
	for i := range t {
		c := uint16(i) << 8
		for range 8 {
			if c&0x8000 != 0 {
				c = c<<1 ^ crc16Poly
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}()

// CRC16 returns the frame checksum of data.
func CRC16(data []byte) uint16 {
	return updateCRC16(0, data)
}

func updateCRC16(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = crc<<8 ^ crc16Table[byte(crc>>8)^b]
	}
	return crc
}
