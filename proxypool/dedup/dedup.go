// Package dedup resolves addresses listed under several protocols into a single assignment.
package dedup

import (
	"proxyrank/proxypool/model"
)

// Priority is the fixed resolution order for addresses present in more than one list.
var Priority = []model.Protocol{model.ProtoSOCKS5, model.ProtoHTTP, model.ProtoSOCKS4}

// Buckets maps a protocol to its addresses in discovery order.
type Buckets map[model.Protocol][]string

// Resolve returns pairwise disjoint buckets whose union equals the union of the input.
// An address claimed by a higher priority protocol is dropped from the lower ones;
// repeated addresses within one list keep their first occurrence. The input is not modified.
func Resolve(in Buckets) Buckets {
	claimed := make(map[string]model.Protocol)
	for _, proto := range Priority {
		for _, addr := range in[proto] {
			if _, ok := claimed[addr]; !ok {
				claimed[addr] = proto
			}
		}
	}

	out := make(Buckets, len(Priority))
	for _, proto := range Priority {
		seen := make(map[string]struct{})
		list := make([]string, 0, len(in[proto]))
		for _, addr := range in[proto] {
			if claimed[addr] != proto {
				continue
			}
			if _, dup := seen[addr]; dup {
				continue
			}
			seen[addr] = struct{}{}
			list = append(list, addr)
		}
		out[proto] = list
	}
	return out
}

// Count returns the total number of addresses across all buckets.
func (b Buckets) Count() int {
	n := 0
	for _, list := range b {
		n += len(list)
	}
	return n
}

// Endpoints flattens the buckets in discovery order (http, socks5, socks4).
func (b Buckets) Endpoints() []model.Endpoint {
	eps := make([]model.Endpoint, 0, b.Count())
	for _, proto := range model.Protocols {
		for _, addr := range b[proto] {
			eps = append(eps, model.Endpoint{Protocol: proto, Address: addr})
		}
	}
	return eps
}
