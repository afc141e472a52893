// Intel XL710/i40e 40GbE controller driver
// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package i40e

import "github.com/usbarmory/i40e/pci"

// Per-queue MMIO tail register offsets within BAR0, relative to the base of
// the queue-indexed register block (Intel Ethernet Controller X710/XL710
// Datasheet, QTX_TAIL/QRX_TAIL). Each queue's register sits at base +
// qid*stride.
const (
	qrxTailBase   = 0x00128000
	qtxTailBase   = 0x00108000
	qTailStride   = 0x1000
)

// Port represents one physical function of the XL710 family — the BAR0
// register window and the per-queue records the queue lifecycle and mode
// selection consult (§4.7, §4.8). It holds no traffic-class map or
// queue→VSI assignment. Device probe and PCI enumeration that
// produce a *pci.Device are out of the core's scope (§1); Port only
// consults an already-resolved one.
type Port struct {
	dev *pci.Device

	// rxQueues and txQueues record the installed mode-selection result
	// per queue (§4.8), keyed by queue id.
	rxQueues map[uint16]*RxQueue
	txQueues map[uint16]*TxQueue
}

// NewPort wraps an already-probed PCI device as a port ready for queue
// setup.
func NewPort(dev *pci.Device) *Port {
	return &Port{
		dev:      dev,
		rxQueues: make(map[uint16]*RxQueue),
		txQueues: make(map[uint16]*TxQueue),
	}
}

func (p *Port) rxTailAddr(qid uint16) uint {
	return p.dev.BaseAddress(0) + qrxTailBase + uint(qid)*qTailStride
}

func (p *Port) txTailAddr(qid uint16) uint {
	return p.dev.BaseAddress(0) + qtxTailBase + uint(qid)*qTailStride
}
