package i2c

import "fmt"

// checkAddr rejects the general call address and anything outside 7 bits.
func checkAddr(addr uint16) error {
	if addr == 0 || addr > 0x7F {
		return fmt.Errorf("invalid i2c addr 0x%X", addr)
	}
	return nil
}
