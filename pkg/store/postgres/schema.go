package postgres

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ajitpratap0/tablewriter/pkg/convert"
	"github.com/ajitpratap0/tablewriter/pkg/domain"
	"github.com/ajitpratap0/tablewriter/pkg/errors"
	"github.com/ajitpratap0/tablewriter/pkg/store"
	"github.com/ajitpratap0/tablewriter/pkg/types"
)

const columnsQuery = `
	SELECT a.attname, format_type(a.atttypid, a.atttypmod)
	FROM pg_attribute a
	WHERE a.attrelid = $1::regclass AND a.attnum > 0 AND NOT a.attisdropped
	ORDER BY a.attnum`

// Only the first key column is used for routing.
const partitionKeyQuery = `
	SELECT p.partstrat::text, a.attname
	FROM pg_partitioned_table p
	JOIN pg_attribute a ON a.attrelid = p.partrelid AND a.attnum = p.partattrs[0]
	WHERE p.partrelid = $1::regclass`

const partitionBoundsQuery = `
	SELECT pg_get_expr(c.relpartbound, c.oid)
	FROM pg_inherits i
	JOIN pg_class c ON c.oid = i.inhrelid
	WHERE i.inhparent = $1::regclass
	ORDER BY c.oid`

// DataTypeOf maps a format_type() name to a column type.
func DataTypeOf(pgType string) (types.DataType, error) {
	t := strings.ToLower(strings.TrimSpace(pgType))
	if strings.HasSuffix(t, "[]") {
		elem, err := DataTypeOf(strings.TrimSuffix(t, "[]"))
		if err != nil {
			return types.TypeUnknown, err
		}
		return types.ArrayOf(elem), nil
	}
	if i := strings.IndexByte(t, '('); i >= 0 && !strings.HasPrefix(t, "timestamp") {
		t = t[:i]
	}
	switch {
	case t == "boolean":
		return types.TypeBool, nil
	case t == "smallint":
		return types.TypeShort, nil
	case t == "integer":
		return types.TypeInt, nil
	case t == "bigint":
		return types.TypeLong, nil
	case t == "real":
		return types.TypeFloat, nil
	case t == "double precision", t == "numeric":
		return types.TypeDouble, nil
	case t == "text", t == "character varying", t == "character":
		return types.TypeString, nil
	case t == "name":
		return types.TypeSymbol, nil
	case t == "bytea":
		return types.TypeBlob, nil
	case t == "date":
		return types.TypeDate, nil
	case strings.HasPrefix(t, "timestamp"):
		return types.TypeTimestamp, nil
	case t == "uuid":
		return types.TypeUUID, nil
	}
	return types.TypeUnknown, errors.Newf(errors.ErrorTypeQuery, "unsupported PostgreSQL type %s", pgType)
}

var (
	hashBound  = regexp.MustCompile(`(?i)modulus\s+(\d+)`)
	rangeBound = regexp.MustCompile(`(?i)^FOR VALUES FROM \((.*)\) TO \((.*)\)$`)
	listBound  = regexp.MustCompile(`(?i)^FOR VALUES IN \((.*)\)$`)
)

// PartitionColumnOf builds the partition column of a table partitioned by
// strategy ('h', 'r' or 'l') from its partitions' bound expressions as
// printed by pg_get_expr.
func PartitionColumnOf(strategy string, col types.ColumnSchema, index int, bounds []string) (store.PartitionColumn, error) {
	pc := store.PartitionColumn{Name: col.Name, Index: index, Type: col.Type}
	switch strategy {
	case "h":
		pc.PartitionType = domain.PartitionHash
		for _, b := range bounds {
			if m := hashBound.FindStringSubmatch(b); m != nil {
				pc.Scheme.Buckets, _ = strconv.Atoi(m[1])
				break
			}
		}
		if pc.Scheme.Buckets == 0 {
			pc.Scheme.Buckets = len(bounds)
		}
		if pc.Scheme.Buckets == 0 {
			return pc, errors.Newf(errors.ErrorTypeQuery, "hash partitioned table has no partitions")
		}

	case "r":
		pc.PartitionType = domain.PartitionRange
		var values []types.Value
		for _, b := range bounds {
			m := rangeBound.FindStringSubmatch(strings.TrimSpace(b))
			if m == nil {
				continue // DEFAULT
			}
			for _, tuple := range m[1:] {
				lit := splitLiterals(tuple)[0]
				if v, ok, err := boundValue(lit, col.Type); err != nil {
					return pc, err
				} else if ok {
					values = append(values, v)
				}
			}
		}
		pc.Scheme.Values = sortedUnique(values)
		if len(pc.Scheme.Values) < 2 {
			return pc, errors.Newf(errors.ErrorTypeQuery, "range partitioned table needs bounded partitions")
		}

	case "l":
		pc.PartitionType = domain.PartitionList
		for _, b := range bounds {
			m := listBound.FindStringSubmatch(strings.TrimSpace(b))
			if m == nil {
				continue
			}
			var group []types.Value
			for _, lit := range splitLiterals(m[1]) {
				v, ok, err := boundValue(lit, col.Type)
				if err != nil {
					return pc, err
				}
				if ok {
					group = append(group, v)
				}
			}
			pc.Scheme.Groups = append(pc.Scheme.Groups, group)
		}

	default:
		return pc, errors.Newf(errors.ErrorTypeQuery, "unsupported partition strategy %q", strategy)
	}
	return pc, nil
}

// boundValue converts one bound literal. MINVALUE, MAXVALUE and NULL
// yield ok == false.
func boundValue(lit string, dt types.DataType) (types.Value, bool, error) {
	lit = strings.TrimSpace(lit)
	switch strings.ToUpper(lit) {
	case "MINVALUE", "MAXVALUE", "NULL":
		return types.Value{}, false, nil
	}
	if i := strings.Index(lit, "::"); i >= 0 {
		lit = lit[:i]
	}
	lit = strings.Trim(lit, "'")
	v, err := convert.Default(lit, dt)
	if err != nil {
		return types.Value{}, false, errors.Wrap(err, errors.ErrorTypeQuery, "partition bound "+lit)
	}
	return v, true, nil
}

// splitLiterals splits a comma separated literal list, honouring quotes.
func splitLiterals(s string) []string {
	var out []string
	var cur strings.Builder
	quoted := false
	for _, r := range s {
		switch {
		case r == '\'':
			quoted = !quoted
			cur.WriteRune(r)
		case r == ',' && !quoted:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func sortedUnique(vs []types.Value) []types.Value {
	sort.Slice(vs, func(i, j int) bool { return types.Compare(vs[i], vs[j]) < 0 })
	out := vs[:0]
	for i, v := range vs {
		if i == 0 || types.Compare(v, vs[i-1]) != 0 {
			out = append(out, v)
		}
	}
	return out
}
