// Package hardware derives the serial number a unit registers with.
package hardware

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// Default sources for the serial.
const (
	CPUInfoPath   = "/proc/cpuinfo"
	MachineIDPath = "/etc/machine-id"
)

// Serial concatenates the CPU serial from cpuinfoPath and the machine id
// from machineIDPath. A missing file contributes an empty string.
func Serial(cpuinfoPath, machineIDPath string) string {
	var cpu string
	if f, err := os.Open(cpuinfoPath); err == nil {
		cpu = CPUSerial(f)
		f.Close()
	}

	var machine string
	if b, err := os.ReadFile(machineIDPath); err == nil {
		machine = strings.TrimSpace(string(b))
	}
	return cpu + machine
}

// CPUSerial returns the value of the "Serial" line of a cpuinfo listing,
// as found on Raspberry Pi boards.
func CPUSerial(r io.Reader) string {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if ok && strings.TrimSpace(key) == "Serial" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
