package abi

import "fmt"

// GfxIpVersion is a hardware IP level such as 10.3.0.
type GfxIpVersion struct {
	Major    uint32
	Minor    uint32
	Stepping uint32
}

func (v GfxIpVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Stepping)
}

// ParseGfxIpVersion parses "major.minor.stepping".
func ParseGfxIpVersion(s string) (GfxIpVersion, error) {
	var v GfxIpVersion
	if _, err := fmt.Sscanf(s, "%d.%d.%d", &v.Major, &v.Minor, &v.Stepping); err != nil {
		return GfxIpVersion{}, fmt.Errorf("%w: %q", ErrUnknownGfxIp, s)
	}
	if _, ok := MachineType(v); !ok {
		return GfxIpVersion{}, fmt.Errorf("%w: %s", ErrUnknownGfxIp, v)
	}
	return v, nil
}

// machineFlagMask selects EF_AMDGPU_MACH in e_flags.
const machineFlagMask = 0xff

var machineTypes = []struct {
	ip   GfxIpVersion
	mach uint8
}{
	{GfxIpVersion{6, 0, 0}, 0x20},
	{GfxIpVersion{6, 0, 1}, 0x21},
	{GfxIpVersion{6, 0, 2}, 0x3a},
	{GfxIpVersion{7, 0, 0}, 0x22},
	{GfxIpVersion{7, 0, 1}, 0x23},
	{GfxIpVersion{7, 0, 2}, 0x24},
	{GfxIpVersion{7, 0, 3}, 0x25},
	{GfxIpVersion{7, 0, 4}, 0x26},
	{GfxIpVersion{7, 0, 5}, 0x3b},
	{GfxIpVersion{8, 0, 0}, 0x27},
	{GfxIpVersion{8, 0, 1}, 0x28},
	{GfxIpVersion{8, 0, 2}, 0x29},
	{GfxIpVersion{8, 0, 3}, 0x2a},
	{GfxIpVersion{8, 0, 5}, 0x3c},
	{GfxIpVersion{8, 1, 0}, 0x2b},
	{GfxIpVersion{9, 0, 0}, 0x2c},
	{GfxIpVersion{9, 0, 2}, 0x2d},
	{GfxIpVersion{9, 0, 4}, 0x2e},
	{GfxIpVersion{9, 0, 6}, 0x2f},
	{GfxIpVersion{9, 0, 9}, 0x31},
	{GfxIpVersion{9, 0, 12}, 0x32},
	{GfxIpVersion{10, 1, 0}, 0x33},
	{GfxIpVersion{10, 1, 1}, 0x34},
	{GfxIpVersion{10, 1, 2}, 0x35},
	{GfxIpVersion{10, 3, 0}, 0x36},
	{GfxIpVersion{10, 3, 1}, 0x37},
}

// MachineType returns the EF_AMDGPU_MACH value for v.
func MachineType(v GfxIpVersion) (uint8, bool) {
	for _, m := range machineTypes {
		if m.ip == v {
			return m.mach, true
		}
	}
	return 0, false
}

// GfxIpFromMachineType is the inverse of MachineType.
func GfxIpFromMachineType(mach uint8) (GfxIpVersion, bool) {
	for _, m := range machineTypes {
		if m.mach == mach {
			return m.ip, true
		}
	}
	return GfxIpVersion{}, false
}
