// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package iface wires a link-layer Device into the kernel's shared
// TCP/IP stack (net/tcpip) and starts the tasks that keep it
// configured: the interface's own receive/poll loop, a DHCPv4 lease
// client, and an IPv6 SLAAC client.
//
// Grounded on original_source's net::register (spawns dhcp4(), auto6(),
// and Interface::run onto the same executor a single device is handed
// to).
package iface

import (
	"github.com/kestrel-os/kestrel/net/dhcp"
	"github.com/kestrel-os/kestrel/net/dns"
	"github.com/kestrel-os/kestrel/net/slaac"
	"github.com/kestrel-os/kestrel/net/tcpip"
	"github.com/kestrel-os/kestrel/sched"
)

// Device is the link-layer contract a driver registers with. It is an
// alias of tcpip.Device so that callers outside net/tcpip never need to
// import that package just to implement it.
type Device = tcpip.Device

var (
	defaultInterface *tcpip.Interface
	defaultResolver  *dns.Resolver
)

// Register builds an Interface around dev, spawns its run loop plus the
// DHCPv4, SLAAC, and DNS resolver tasks onto the kernel's executor
// (C13), and remembers it as the Default() interface.
func Register(dev Device) *tcpip.Interface {
	ifc := tcpip.NewInterface(dev)
	defaultInterface = ifc
	defaultResolver = dns.New(ifc)

	sched.Spawn(ifc.Task())
	sched.Spawn(dhcp.NewTask(ifc))
	sched.Spawn(slaac.NewTask(ifc))
	sched.Spawn(defaultResolver.Task())

	return ifc
}

// Resolver returns the DNS resolver bound to the interface registered
// by Register, or nil if none has been registered yet.
func Resolver() *dns.Resolver {
	return defaultResolver
}

// Default returns the interface registered by the most recent call to
// Register, or nil if none has been registered yet.
func Default() *tcpip.Interface {
	return defaultInterface
}
