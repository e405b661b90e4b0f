package wire

import (
	"fmt"

	"github.com/ajitpratap0/tablewriter/pkg/compression"
	"github.com/ajitpratap0/tablewriter/pkg/convert"
	"github.com/ajitpratap0/tablewriter/pkg/domain"
	"github.com/ajitpratap0/tablewriter/pkg/errors"
	"github.com/ajitpratap0/tablewriter/pkg/json"
	"github.com/ajitpratap0/tablewriter/pkg/store"
	"github.com/ajitpratap0/tablewriter/pkg/types"
)

type loginRequest struct {
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Compress bool   `json:"compress,omitempty"`
}

type schemaRequest struct {
	DBPath    string            `json:"db_path"`
	TableName string            `json:"table_name,omitempty"`
	Trace     map[string]string `json:"trace,omitempty"`
}

type insertHeader struct {
	DBPath    string            `json:"db_path"`
	TableName string            `json:"table_name,omitempty"`
	Rows      int               `json:"rows"`
	Methods   []string          `json:"methods,omitempty"`
	Trace     map[string]string `json:"trace,omitempty"`
}

type response struct {
	OK        bool       `json:"ok"`
	ErrorType string     `json:"error_type,omitempty"`
	Error     string     `json:"error,omitempty"`
	Accepted  int        `json:"accepted,omitempty"`
	Table     *tableJSON `json:"table,omitempty"`
}

func (r *response) err() error {
	if r.OK {
		return nil
	}
	t := errors.ErrorType(r.ErrorType)
	if t == "" {
		t = errors.ErrorTypeQuery
	}
	return errors.New(t, r.Error)
}

func errorResponse(err error) *response {
	return &response{ErrorType: string(errors.TypeOf(err)), Error: err.Error()}
}

type columnJSON struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// partitionJSON carries scheme values as their native Go values so that
// they survive a JSON round trip and convert back to the key type.
type partitionJSON struct {
	Name          string  `json:"name"`
	Index         int     `json:"index"`
	Type          string  `json:"type"`
	PartitionType int     `json:"partition_type"`
	Buckets       int     `json:"buckets,omitempty"`
	Values        []any   `json:"values,omitempty"`
	Groups        [][]any `json:"groups,omitempty"`
}

type tableJSON struct {
	Columns     []columnJSON    `json:"columns"`
	Partitioned bool            `json:"partitioned"`
	Partitions  []partitionJSON `json:"partitions,omitempty"`
}

func encodeTableInfo(info *store.TableInfo) *tableJSON {
	tj := &tableJSON{Partitioned: info.Partitioned}
	for _, c := range info.Schema.Columns {
		tj.Columns = append(tj.Columns, columnJSON{Name: c.Name, Type: c.Type.String()})
	}
	for _, p := range info.Partitions {
		pj := partitionJSON{
			Name:          p.Name,
			Index:         p.Index,
			Type:          p.Type.String(),
			PartitionType: int(p.PartitionType),
			Buckets:       p.Scheme.Buckets,
			Values:        nativeValues(p.Scheme.Values),
		}
		for _, g := range p.Scheme.Groups {
			pj.Groups = append(pj.Groups, nativeValues(g))
		}
		tj.Partitions = append(tj.Partitions, pj)
	}
	return tj
}

func nativeValues(vs []types.Value) []any {
	if len(vs) == 0 {
		return nil
	}
	out := make([]any, len(vs))
	for i, v := range vs {
		n := v.Native()
		if b, ok := n.([]byte); ok {
			n = string(b)
		}
		out[i] = n
	}
	return out
}

func decodeTableInfo(tj *tableJSON) (*store.TableInfo, error) {
	if tj == nil {
		return nil, errors.New(errors.ErrorTypeProtocol, "schema response without table")
	}
	schema := &types.TableSchema{}
	for _, c := range tj.Columns {
		dt, err := types.ParseDataType(c.Type)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeProtocol, fmt.Sprintf("column %s", c.Name))
		}
		schema.Columns = append(schema.Columns, types.ColumnSchema{Name: c.Name, Type: dt})
	}
	info := &store.TableInfo{Schema: schema, Partitioned: tj.Partitioned}
	for _, pj := range tj.Partitions {
		dt, err := types.ParseDataType(pj.Type)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeProtocol, fmt.Sprintf("partition column %s", pj.Name))
		}
		pc := store.PartitionColumn{
			Name:          pj.Name,
			Index:         pj.Index,
			Type:          dt,
			PartitionType: domain.PartitionType(pj.PartitionType),
			Scheme:        domain.Scheme{Buckets: pj.Buckets},
		}
		if pc.Scheme.Values, err = typedValues(pj.Values, dt); err != nil {
			return nil, err
		}
		for _, g := range pj.Groups {
			vs, err := typedValues(g, dt)
			if err != nil {
				return nil, err
			}
			pc.Scheme.Groups = append(pc.Scheme.Groups, vs)
		}
		info.Partitions = append(info.Partitions, pc)
	}
	return info, nil
}

func typedValues(raw []any, dt types.DataType) ([]types.Value, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]types.Value, len(raw))
	for i, r := range raw {
		v, err := convert.Default(r, dt)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "partition scheme value")
		}
		out[i] = v
	}
	return out, nil
}

func methodNames(ms []compression.Method) []string {
	if len(ms) == 0 {
		return nil
	}
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = string(m)
	}
	return out
}

func parseMethods(names []string) ([]compression.Method, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]compression.Method, len(names))
	for i, n := range names {
		m, err := compression.ParseMethod(n)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}

func marshalFrame(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "encode frame header")
	}
	return b, nil
}

func unmarshalFrame(b []byte, v any) error {
	if err := json.Unmarshal(b, v); err != nil {
		return errors.Wrap(err, errors.ErrorTypeProtocol, "decode frame header")
	}
	return nil
}
