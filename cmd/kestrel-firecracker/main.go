// Kestrel kernel
// https://github.com/kestrel-os/kestrel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Command kestrel-firecracker is the Firecracker microVM kernel image
// entry point.
//
// This package is only meant to be built with `GOOS=tamago GOARCH=amd64`
// as supported by the TamaGo framework for bare metal Go, see
// https://github.com/kestrel-os/kestrel.
package main

import (
	"github.com/kestrel-os/kestrel/board/firecracker/microvm"
)

func main() {
	microvm.Boot()
}
