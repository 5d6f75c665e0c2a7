package dedup

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"proxyrank/proxypool/model"
)

func TestResolve_Priority(t *testing.T) {
	in := Buckets{
		model.ProtoHTTP:   {"A", "B", "D"},
		model.ProtoSOCKS4: {"A", "D", "E"},
		model.ProtoSOCKS5: {"A", "C"},
	}
	out := Resolve(in)

	assert.Equal(t, []string{"A", "C"}, out[model.ProtoSOCKS5])
	assert.Equal(t, []string{"B", "D"}, out[model.ProtoHTTP])
	assert.Equal(t, []string{"E"}, out[model.ProtoSOCKS4])
}

func TestResolve_EndToEndScenario(t *testing.T) {
	out := Resolve(Buckets{
		model.ProtoHTTP:   {"A", "B"},
		model.ProtoSOCKS5: {"A", "C"},
	})
	assert.Equal(t, []string{"B"}, out[model.ProtoHTTP])
	assert.Equal(t, []string{"A", "C"}, out[model.ProtoSOCKS5])
	assert.Empty(t, out[model.ProtoSOCKS4])
}

func TestResolve_DoesNotMutateInput(t *testing.T) {
	in := Buckets{
		model.ProtoHTTP:   {"A", "B", "A"},
		model.ProtoSOCKS5: {"A"},
	}
	Resolve(in)
	assert.Equal(t, []string{"A", "B", "A"}, in[model.ProtoHTTP])
	assert.Equal(t, []string{"A"}, in[model.ProtoSOCKS5])
}

func TestResolve_CollapsesRepeatsWithinList(t *testing.T) {
	out := Resolve(Buckets{model.ProtoSOCKS4: {"X", "Y", "X"}})
	assert.Equal(t, []string{"X", "Y"}, out[model.ProtoSOCKS4])
}

// Disjointness, union preservation and priority over randomised input.
func TestResolve_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		in := Buckets{}
		for _, proto := range Priority {
			n := rng.Intn(30)
			for i := 0; i < n; i++ {
				in[proto] = append(in[proto], fmt.Sprintf("10.0.0.%d:80", rng.Intn(40)))
			}
		}
		out := Resolve(in)

		owner := map[string]model.Protocol{}
		for proto, list := range out {
			for _, addr := range list {
				prev, dup := owner[addr]
				require.False(t, dup, "address %s in both %s and %s", addr, prev, proto)
				owner[addr] = proto
			}
		}

		union := map[string]struct{}{}
		for _, list := range in {
			for _, addr := range list {
				union[addr] = struct{}{}
			}
		}
		require.Len(t, owner, len(union))

		for addr := range union {
			want := expectedOwner(in, addr)
			assert.Equal(t, want, owner[addr], addr)
		}
	}
}

func expectedOwner(in Buckets, addr string) model.Protocol {
	for _, proto := range Priority {
		for _, a := range in[proto] {
			if a == addr {
				return proto
			}
		}
	}
	return ""
}

func TestResolve_IndependentOfListOrdering(t *testing.T) {
	a := Resolve(Buckets{
		model.ProtoHTTP:   {"1", "2", "3"},
		model.ProtoSOCKS5: {"3", "4"},
		model.ProtoSOCKS4: {"2", "5"},
	})
	b := Resolve(Buckets{
		model.ProtoHTTP:   {"3", "1", "2"},
		model.ProtoSOCKS5: {"4", "3"},
		model.ProtoSOCKS4: {"5", "2"},
	})
	for _, proto := range Priority {
		x, y := append([]string(nil), a[proto]...), append([]string(nil), b[proto]...)
		sort.Strings(x)
		sort.Strings(y)
		assert.Equal(t, x, y, proto)
	}
}

func TestBuckets_Endpoints(t *testing.T) {
	b := Buckets{
		model.ProtoSOCKS4: {"S4"},
		model.ProtoSOCKS5: {"S5a", "S5b"},
		model.ProtoHTTP:   {"H"},
	}
	eps := b.Endpoints()
	require.Len(t, eps, 4)
	assert.Equal(t, "http://H", eps[0].URL())
	assert.Equal(t, "socks5://S5a", eps[1].URL())
	assert.Equal(t, "socks5://S5b", eps[2].URL())
	assert.Equal(t, "socks4://S4", eps[3].URL())
	assert.Equal(t, 4, b.Count())
}
