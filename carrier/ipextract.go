/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package carrier

import (
	"net/netip"
	"strings"

	"github.com/asergeyev/nradix"
	"github.com/gravwell/deviceatlas/headers"
)

const forwardedFor = `x-forwarded-for`

// ipHeaders is checked in order, the first public IPv4 address wins
var ipHeaders = []string{
	forwardedFor,
	`client-ip`,
	`x-client-ip`,
	`rlnclientipaddr`,
	`proxy-client-ip`,
	`wl-proxy-client-ip`,
	`x-forwarded`,
	`forwarded-for`,
	`forwarded`,
}

var reservedRanges = []string{
	`0.0.0.0/32`,
	`127.0.0.0/8`,
	`10.0.0.0/8`,
	`172.16.0.0/12`,
	`192.168.0.0/16`,
	`169.254.0.0/16`,
}

// reservedTree holds the non-routable ranges, it is read only after init
var reservedTree *nradix.Tree

func init() {
	reservedTree = nradix.NewTree(len(reservedRanges))
	for _, r := range reservedRanges {
		if err := reservedTree.AddCIDR(r, true); err != nil {
			panic(err)
		}
	}
}

// ExtractIP pulls the first public IPv4 address out of a set of request headers.
func ExtractIP(hdrs map[string]string) (ip netip.Addr, ok bool) {
	norm := headers.Normalize(hdrs)
	for _, h := range ipHeaders {
		v, exists := norm[h]
		if !exists {
			continue
		}
		if h == forwardedFor {
			if idx := strings.IndexByte(v, ','); idx >= 0 {
				v = v[:idx]
			}
		}
		if ip, ok = parsePublic(v); ok {
			return
		}
	}
	return
}

func parsePublic(v string) (ip netip.Addr, ok bool) {
	var err error
	if ip, err = netip.ParseAddr(strings.TrimSpace(v)); err != nil {
		return
	}
	ip = ip.Unmap()
	ok = IsPublic(ip)
	return
}

// IsPublic reports whether ip is an IPv4 address outside of the reserved ranges.
func IsPublic(ip netip.Addr) bool {
	ip = ip.Unmap()
	if !ip.Is4() {
		return false
	}
	if v, err := reservedTree.FindCIDR(ip.String()); err != nil || v != nil {
		return false
	}
	return true
}

func ipToUint32(ip netip.Addr) uint32 {
	b := ip.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
