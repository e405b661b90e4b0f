// Package domain maps partition-key values to partition indexes.
//
// A Domain answers, for a batch of key values, which partition of the table
// each value belongs to. The writer uses the answer modulo its worker count
// to pick a sender, so identical keys always reach the same sender.
package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ajitpratap0/tablewriter/pkg/errors"
	"github.com/ajitpratap0/tablewriter/pkg/types"
)

// PartitionType is the partitioning scheme of a table column.
type PartitionType int

const (
	PartitionSeq   PartitionType = 0
	PartitionValue PartitionType = 1
	PartitionRange PartitionType = 2
	PartitionList  PartitionType = 3
	PartitionCompo PartitionType = 4
	PartitionHash  PartitionType = 5
)

func (p PartitionType) String() string {
	switch p {
	case PartitionSeq:
		return "SEQ"
	case PartitionValue:
		return "VALUE"
	case PartitionRange:
		return "RANGE"
	case PartitionList:
		return "LIST"
	case PartitionCompo:
		return "COMPO"
	case PartitionHash:
		return "HASH"
	}
	return fmt.Sprintf("PartitionType(%d)", int(p))
}

// Scheme is the opaque partition scheme reported by the store.
//
//   - HASH uses Buckets.
//   - VALUE uses Values, one partition per value.
//   - RANGE uses Values as sorted boundaries; partition i holds
//     Values[i] <= v < Values[i+1].
//   - LIST uses Groups, one partition per group of values.
type Scheme struct {
	Buckets int             `json:"buckets,omitempty"`
	Values  []types.Value   `json:"values,omitempty"`
	Groups  [][]types.Value `json:"groups,omitempty"`
}

// Domain computes partition indexes for key values. A result of -1 means
// the value belongs to no known partition.
type Domain interface {
	Type() PartitionType
	PartitionKeys(keys []types.Value) []int
}

// New builds the domain of ptype over keys of type keyType.
func New(ptype PartitionType, keyType types.DataType, scheme Scheme) (Domain, error) {
	if keyType.IsArray() {
		return nil, errors.Newf(errors.ErrorTypeConfig, "partition column cannot be array type %s", keyType)
	}
	switch ptype {
	case PartitionHash:
		if scheme.Buckets <= 0 {
			return nil, errors.Newf(errors.ErrorTypeConfig, "hash domain needs a positive bucket count, got %d", scheme.Buckets)
		}
		return &hashDomain{buckets: scheme.Buckets}, nil
	case PartitionValue:
		return newValueDomain(scheme.Values), nil
	case PartitionRange:
		if len(scheme.Values) < 2 {
			return nil, errors.New(errors.ErrorTypeConfig, "range domain needs at least two boundaries")
		}
		for i := 1; i < len(scheme.Values); i++ {
			if types.Compare(scheme.Values[i-1], scheme.Values[i]) >= 0 {
				return nil, errors.Newf(errors.ErrorTypeConfig, "range boundary %d not after previous boundary", i)
			}
		}
		return &rangeDomain{bounds: scheme.Values}, nil
	case PartitionList:
		return newListDomain(scheme.Groups), nil
	}
	return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported partition type %s", ptype)
}

type hashDomain struct {
	buckets int
}

func (d *hashDomain) Type() PartitionType { return PartitionHash }

func (d *hashDomain) PartitionKeys(keys []types.Value) []int {
	out := make([]int, len(keys))
	for i, k := range keys {
		out[i] = Bucket(k, d.buckets)
	}
	return out
}

// valueDomain places known values at their scheme position. Values the
// scheme does not list yet hash past the end, so they still route
// deterministically.
type valueDomain struct {
	index map[string]int
	n     int
}

func newValueDomain(values []types.Value) *valueDomain {
	d := &valueDomain{index: make(map[string]int, len(values)), n: len(values)}
	for i, v := range values {
		d.index[keyString(v)] = i
	}
	return d
}

func (d *valueDomain) Type() PartitionType { return PartitionValue }

func (d *valueDomain) PartitionKeys(keys []types.Value) []int {
	out := make([]int, len(keys))
	for i, k := range keys {
		if k.IsNull() {
			out[i] = -1
			continue
		}
		if idx, ok := d.index[keyString(k)]; ok {
			out[i] = idx
			continue
		}
		out[i] = d.n + Bucket(k, maxBuckets)
	}
	return out
}

type rangeDomain struct {
	bounds []types.Value
}

func (d *rangeDomain) Type() PartitionType { return PartitionRange }

func (d *rangeDomain) PartitionKeys(keys []types.Value) []int {
	out := make([]int, len(keys))
	for i, k := range keys {
		out[i] = d.search(k)
	}
	return out
}

func (d *rangeDomain) search(k types.Value) int {
	if k.IsNull() {
		return -1
	}
	// first boundary strictly greater than k
	j := sort.Search(len(d.bounds), func(i int) bool {
		return types.Compare(d.bounds[i], k) > 0
	})
	if j == 0 || j == len(d.bounds) {
		return -1
	}
	return j - 1
}

type listDomain struct {
	index map[string]int
}

func newListDomain(groups [][]types.Value) *listDomain {
	d := &listDomain{index: make(map[string]int)}
	for gi, g := range groups {
		for _, v := range g {
			d.index[keyString(v)] = gi
		}
	}
	return d
}

func (d *listDomain) Type() PartitionType { return PartitionList }

func (d *listDomain) PartitionKeys(keys []types.Value) []int {
	out := make([]int, len(keys))
	for i, k := range keys {
		idx, ok := d.index[keyString(k)]
		if !ok || k.IsNull() {
			idx = -1
		}
		out[i] = idx
	}
	return out
}

// keyString gives values of different Go representations but equal
// ordering the same map key.
func keyString(v types.Value) string {
	if v.IsNull() {
		return "\x00null"
	}
	if i, ok := v.Int64(); ok && v.Type.Elem() != types.TypeFloat && v.Type.Elem() != types.TypeDouble {
		return fmt.Sprintf("i%d", i)
	}
	if f, ok := v.Float64(); ok {
		return fmt.Sprintf("f%v", f)
	}
	if b, ok := v.Bytes(); ok {
		var sb strings.Builder
		sb.WriteByte('s')
		sb.Write(b)
		return sb.String()
	}
	return "v" + v.String()
}
