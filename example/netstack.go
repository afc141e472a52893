// Intel XL710/i40e 40GbE controller driver
// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package example bridges an i40e Rx/Tx queue pair into a
// gvisor.dev/gvisor/pkg/tcpip netstack, the same rx_burst/tx_burst-into-
// link-endpoint pattern the teacher repo uses to bridge its USB Ethernet
// gadget into a userspace TCP/IP stack (example/usb_ethernet.go). This is a
// runnable integration, not part of the core: the core never parses
// Ethernet headers or touches payload bytes (§1 Non-goals); this package is
// the first layer that does.
package example

import (
	"time"

	"github.com/usbarmory/i40e"
	"github.com/usbarmory/i40e/mbuf"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/buffer"
	"gvisor.dev/gvisor/pkg/tcpip/header"
	"gvisor.dev/gvisor/pkg/tcpip/link/channel"
	"gvisor.dev/gvisor/pkg/tcpip/stack"
)

// pollInterval paces the Rx/Tx polling loops. The core is purely poll-mode
// (§5): nothing here is interrupt-driven, so something external has to
// call Burst repeatedly — these loops are that something.
const pollInterval = 100 * time.Microsecond

// NIC bridges one i40e Rx/Tx queue pair into a channel.Endpoint ready to be
// installed on a stack.Stack with CreateNIC.
type NIC struct {
	rx   *i40e.RxQueue
	tx   *i40e.TxQueue
	pool mbuf.Pool

	link *channel.Endpoint
	stop chan struct{}
}

// New builds a NIC. mtu and linkAddr configure the channel.Endpoint exactly
// as the teacher's configureNetworkStack configures its own.
func New(rx *i40e.RxQueue, tx *i40e.TxQueue, pool mbuf.Pool, mtu uint32, linkAddr tcpip.LinkAddress) *NIC {
	return &NIC{
		rx:   rx,
		tx:   tx,
		pool: pool,
		link: channel.New(256, mtu, linkAddr),
		stop: make(chan struct{}),
	}
}

// Endpoint returns the stack.LinkEndpoint to pass to Stack.CreateNIC.
func (n *NIC) Endpoint() stack.LinkEndpoint {
	return n.link
}

// Start launches the Rx polling loop and the Tx draining loop. Both run
// until Stop is called.
func (n *NIC) Start() {
	go n.pollRx()
	go n.drainTx()
}

// Stop halts both loops.
func (n *NIC) Stop() {
	close(n.stop)
}

// pollRx repeatedly calls rx_burst and injects each received frame into the
// netstack.
func (n *NIC) pollRx() {
	out := make([]*mbuf.Mbuf, i40e.RxMaxBurst)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stop:
			return
		case <-ticker.C:
		}

		k := n.rx.Burst(out)

		for i := 0; i < k; i++ {
			n.deliver(out[i])
			out[i] = nil
		}
	}
}

// deliver hands one received (possibly scattered) packet to the netstack
// and releases every segment of the chain back to its pool.
func (n *NIC) deliver(m *mbuf.Mbuf) {
	data := flattenChain(m)
	releaseChain(m)

	if len(data) < header.EthernetMinimumSize {
		return
	}

	eth := header.Ethernet(data)

	pkt := stack.NewPacketBuffer(stack.PacketBufferOptions{
		Payload: buffer.MakeWithData(data[header.EthernetMinimumSize:]),
	})

	n.link.InjectInbound(eth.Type(), pkt)
}

// flattenChain copies a (possibly multi-segment) received packet into one
// contiguous buffer — the boundary where this module's scattered-packet
// representation (§4.3) meets an application that wants one []byte.
func flattenChain(m *mbuf.Mbuf) []byte {
	data := make([]byte, 0, m.PktLen)

	for seg := m; seg != nil; seg = seg.Next {
		data = append(data, seg.Data()...)
	}

	return data
}

// releaseChain returns every segment of a chain to its owning pool.
func releaseChain(m *mbuf.Mbuf) {
	for seg := m; seg != nil; {
		next := seg.Next
		if seg.Pool != nil {
			seg.Pool.Put(seg)
		}
		seg = next
	}
}

// drainTx reads outbound packets the netstack queued on the channel
// endpoint and hands them to tx_burst one at a time, single-segment.
func (n *NIC) drainTx() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stop:
			return
		case <-ticker.C:
		}

		for {
			pkt := n.link.Read()
			if pkt == nil {
				break
			}

			n.sendOne(pkt)
		}
	}
}

// sendOne serializes one outbound packet buffer into an Ethernet frame and
// transmits it as a single-segment mbuf.
func (n *NIC) sendOne(pkt *stack.PacketBuffer) {
	defer pkt.DecRef()

	payload := pkt.ToBuffer().Flatten()

	eth := make(header.Ethernet, header.EthernetMinimumSize)
	eth.Encode(&header.EthernetFields{
		SrcAddr: n.link.LinkAddress(),
		DstAddr: pkt.EgressRoute.RemoteLinkAddress,
		Type:    pkt.NetworkProtocolNumber,
	})

	frame := make([]byte, 0, len(eth)+len(payload))
	frame = append(frame, eth...)
	frame = append(frame, payload...)

	m, err := n.pool.Get()
	if err != nil {
		return
	}

	if !m.SetData(frame) {
		n.pool.Put(m)
		return
	}

	n.tx.Burst([]*mbuf.Mbuf{m})
}
