package mysql

import (
	"sort"
	"strings"

	"github.com/ajitpratap0/tablewriter/pkg/convert"
	"github.com/ajitpratap0/tablewriter/pkg/domain"
	"github.com/ajitpratap0/tablewriter/pkg/errors"
	"github.com/ajitpratap0/tablewriter/pkg/store"
	"github.com/ajitpratap0/tablewriter/pkg/types"
)

const columnsQuery = `
	SELECT COLUMN_NAME, DATA_TYPE, COLUMN_TYPE
	FROM information_schema.columns
	WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
	ORDER BY ORDINAL_POSITION`

const partitionsQuery = `
	SELECT PARTITION_METHOD, PARTITION_EXPRESSION, PARTITION_DESCRIPTION
	FROM information_schema.partitions
	WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND PARTITION_NAME IS NOT NULL
	ORDER BY PARTITION_ORDINAL_POSITION`

// DataTypeOf maps an information_schema DATA_TYPE to a column type.
// COLUMN_TYPE distinguishes tinyint(1), which is boolean.
func DataTypeOf(dataType, columnType string) (types.DataType, error) {
	switch strings.ToLower(dataType) {
	case "tinyint":
		if strings.HasPrefix(strings.ToLower(columnType), "tinyint(1)") {
			return types.TypeBool, nil
		}
		return types.TypeChar, nil
	case "bit", "bool", "boolean":
		return types.TypeBool, nil
	case "smallint":
		return types.TypeShort, nil
	case "mediumint", "int", "integer":
		return types.TypeInt, nil
	case "bigint":
		return types.TypeLong, nil
	case "float":
		return types.TypeFloat, nil
	case "double", "decimal", "numeric":
		return types.TypeDouble, nil
	case "char", "varchar", "text", "tinytext", "mediumtext", "longtext":
		return types.TypeString, nil
	case "enum":
		return types.TypeSymbol, nil
	case "binary", "varbinary", "blob", "tinyblob", "mediumblob", "longblob":
		return types.TypeBlob, nil
	case "date":
		return types.TypeDate, nil
	case "datetime", "timestamp":
		return types.TypeTimestamp, nil
	}
	return types.TypeUnknown, errors.Newf(errors.ErrorTypeQuery, "unsupported MySQL type %s", columnType)
}

// partitionKey extracts the first column of a partition expression such
// as "`id`" or "`region`,`day`".
func partitionKey(expr string) string {
	first, _, _ := strings.Cut(expr, ",")
	return strings.Trim(strings.TrimSpace(first), "`")
}

// PartitionColumnOf builds the partition column from PARTITION_METHOD and
// the PARTITION_DESCRIPTION of every partition.
//
// RANGE partitions are described by their exclusive upper bounds, which
// become the boundaries of a range domain. Keys below the first bound
// then fall outside the domain and route to the first worker.
func PartitionColumnOf(method string, col types.ColumnSchema, index int, descs []string) (store.PartitionColumn, error) {
	pc := store.PartitionColumn{Name: col.Name, Index: index, Type: col.Type}
	switch strings.ToUpper(method) {
	case "HASH", "LINEAR HASH", "KEY", "LINEAR KEY":
		pc.PartitionType = domain.PartitionHash
		pc.Scheme.Buckets = len(descs)

	case "RANGE", "RANGE COLUMNS":
		pc.PartitionType = domain.PartitionRange
		var values []types.Value
		for _, d := range descs {
			lits := splitLiterals(d)
			if len(lits) == 0 {
				continue
			}
			v, ok, err := boundValue(lits[0], col.Type)
			if err != nil {
				return pc, err
			}
			if ok {
				values = append(values, v)
			}
		}
		sort.Slice(values, func(i, j int) bool { return types.Compare(values[i], values[j]) < 0 })
		pc.Scheme.Values = values
		if len(values) < 2 {
			return pc, errors.Newf(errors.ErrorTypeQuery, "range partitioned table needs at least two bounded partitions")
		}

	case "LIST", "LIST COLUMNS":
		pc.PartitionType = domain.PartitionList
		for _, d := range descs {
			var group []types.Value
			for _, lit := range splitLiterals(d) {
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
		return pc, errors.Newf(errors.ErrorTypeQuery, "unsupported partition method %s", method)
	}
	return pc, nil
}

func boundValue(lit string, dt types.DataType) (types.Value, bool, error) {
	lit = strings.TrimSpace(lit)
	switch strings.ToUpper(lit) {
	case "MAXVALUE", "NULL", "":
		return types.Value{}, false, nil
	}
	lit = strings.Trim(lit, "'")
	v, err := convert.Default(lit, dt)
	if err != nil {
		return types.Value{}, false, errors.Wrap(err, errors.ErrorTypeQuery, "partition bound "+lit)
	}
	return v, true, nil
}

// splitLiterals splits a comma separated literal list, honouring quotes and
// the parentheses MySQL prints around multi-column tuples.
func splitLiterals(s string) []string {
	var out []string
	var cur strings.Builder
	quoted := false
	for _, r := range s {
		switch {
		case r == '\'':
			quoted = !quoted
			cur.WriteRune(r)
		case (r == '(' || r == ')') && !quoted:
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
