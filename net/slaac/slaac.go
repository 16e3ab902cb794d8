// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package slaac implements the IPv6 Router-Solicitation/Advertisement
// task (SLAAC): it derives a link-local address from the interface's
// MAC, solicits routers once, and mutates the shared interface's
// address/route/DNS set as a Router Advertisement arrives.
//
// Grounded on original_source's auto6() task.
package slaac

import (
	"net"

	"github.com/kestrel-os/kestrel/klog"
	"github.com/kestrel-os/kestrel/net/tcpip"
	"github.com/kestrel-os/kestrel/sched"
)

type stage int

const (
	stageSolicit stage = iota
	stageWaitAdvert
	stageDone
)

type task struct {
	ifc   *tcpip.Interface
	stage stage
}

// NewTask returns a sched.Task that derives a link-local IPv6 address
// for ifc, sends one Router Solicitation, and applies the first Router
// Advertisement it sees.
func NewTask(ifc *tcpip.Interface) sched.Task {
	t := &task{ifc: ifc}
	return sched.TaskFunc(t.poll)
}

func (t *task) poll() bool {
	switch t.stage {
	case stageSolicit:
		linkLocal := tcpip.LinkLocalFromMAC(t.ifc.LinkAddress())
		t.ifc.AddAddress6(linkLocal, 64)

		src, dst, msg := t.ifc.RouterSolicitation()
		t.ifc.SendICMPv6(src, dst, msg)

		t.stage = stageWaitAdvert
	case stageWaitAdvert:
		src, payload, ok := t.ifc.RecvRouterAdvertisement()
		if !ok {
			return false
		}

		ra, ok := tcpip.ParseRouterAdvertisement(payload)
		if !ok {
			return false
		}

		t.apply(src, ra)
		t.stage = stageDone
	}

	return t.stage == stageDone
}

func (t *task) apply(router [16]byte, ra tcpip.RouterAdvertisement) {
	linkLocal := tcpip.LinkLocalFromMAC(t.ifc.LinkAddress())

	if ra.HasPrefix && ra.Prefix.Autonomous {
		addr := ra.Prefix.Prefix
		// splice in our own interface identifier, the low 64 bits of
		// the link-local address, in place of the advertised prefix's
		copy(addr[8:16], linkLocal[8:16])
		t.ifc.AddAddress6(addr, ra.Prefix.PrefixLen)
		t.ifc.SetDefaultRoute6(router)

		klog.Infof("slaac", "address configured", klog.F("address", net.IP(addr[:]).String()))
	}

	for _, dns := range ra.DNSServers {
		t.ifc.AddDNSServer(net.IP(dns[:]))
	}
}
