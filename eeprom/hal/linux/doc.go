// Package linux implements hal.Bus on Linux i2c-dev adapter nodes.
//
// The adapter is driven through the I2C_RDWR ioctl using
// [golang.org/x/sys/unix], so that an addressed read is a single combined
// transaction with a repeated start between the address phase and the data
// phase:
//
//	S [0x50 W] [off hi] [off lo] Sr [0x50 R] [data ...] P
//
// Load the i2c-dev module and give the process access to the node:
//
//	modprobe i2c-dev
//	bus, err := linux.OpenAdapter(1) // /dev/i2c-1
//	if err != nil { ... }
//	defer bus.Close()
//	ee, err := eeprom.New(bus, eeprom.DefaultConfig())
package linux
