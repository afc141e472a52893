// PCI device enumeration surface consulted by the i40e queue lifecycle
// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package pci models the slice of PCI Local Bus behavior the i40e core
// treats as an external collaborator: probing the XL710 function and
// resolving its memory-mapped Base Address Registers. Device discovery
// itself (bus walk, config-space I/O) is out of the core's scope — the
// core only ever consults an already-resolved Device for the register
// windows it needs (BAR0 CSR space, where the per-queue tail registers
// live; BAR3 MSI-X, unused by a polling driver but kept for interface
// completeness with real i40e NICs).
package pci

// Intel Ethernet Controller XL710 family identifiers
// (Intel Ethernet Controller X710/XL710 Datasheet, Table 5-1).
const (
	VendorIntel = 0x8086

	DeviceXL710QDA2 = 0x1583
	DeviceXL710QDA1 = 0x1584
	DeviceX710      = 0x1572
)

// Device represents an already-probed PCI function. Construction (bus
// walk, vendor/device matching, BAR decoding) is the job of the bring-up
// layer this package does not implement; NewDevice simply records the
// outcome of that process for the core to consult.
type Device struct {
	Bus    uint32
	Slot   uint32
	Vendor uint16
	Device uint16

	// Revision is the PCI Revision ID register value; the i40e mode
	// selection logic does not currently branch on it but downstream
	// steppings sometimes require quirks keyed on this field.
	Revision uint8

	// bars holds the resolved (already decoded, already mapped) base
	// address for each of the up to six BAR slots. A zero entry means
	// "not present" — matching the sentinel used by the reference
	// enumerator this package is modeled on.
	bars [6]uint
}

// NewDevice records a PCI function that has already been probed and whose
// BARs have already been decoded and mapped by the bring-up layer.
func NewDevice(bus, slot uint32, vendor, device uint16, revision uint8, bars [6]uint) *Device {
	return &Device{
		Bus:      bus,
		Slot:     slot,
		Vendor:   vendor,
		Device:   device,
		Revision: revision,
		bars:     bars,
	}
}

// BaseAddress returns the resolved base address of BAR n, or 0 if that BAR
// slot is not populated.
func (d *Device) BaseAddress(n int) uint {
	if n < 0 || n > 5 {
		return 0
	}

	return d.bars[n]
}
