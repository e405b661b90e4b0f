package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/tablewriter/pkg/convert"
	"github.com/ajitpratap0/tablewriter/pkg/domain"
	"github.com/ajitpratap0/tablewriter/pkg/store"
	"github.com/ajitpratap0/tablewriter/pkg/store/memory"
	"github.com/ajitpratap0/tablewriter/pkg/types"
)

// catalogFile lists the tables a server starts with.
//
//	tables:
//	  - db_path: dfs://quotes
//	    table_name: q
//	    columns:
//	      - {name: sym, type: SYMBOL}
//	      - {name: price, type: DOUBLE}
//	    partitions:
//	      - {column: sym, type: HASH, buckets: 8}
type catalogFile struct {
	Tables []tableDef `yaml:"tables"`
}

type tableDef struct {
	DBPath     string         `yaml:"db_path"`
	TableName  string         `yaml:"table_name"`
	Columns    []columnDef    `yaml:"columns"`
	Partitions []partitionDef `yaml:"partitions"`
}

type columnDef struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type partitionDef struct {
	Column  string  `yaml:"column"`
	Type    string  `yaml:"type"`
	Buckets int     `yaml:"buckets"`
	Values  []any   `yaml:"values"`
	Groups  [][]any `yaml:"groups"`
}

func loadCatalog(path string, cat *memory.Catalog) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is an operator flag
	if err != nil {
		return fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	for _, td := range f.Tables {
		info, err := td.tableInfo()
		if err != nil {
			return fmt.Errorf("table %s: %w", store.Target{DBPath: td.DBPath, TableName: td.TableName}, err)
		}
		if _, err := cat.Create(td.DBPath, td.TableName, info); err != nil {
			return err
		}
	}
	return nil
}

func (td tableDef) tableInfo() (*store.TableInfo, error) {
	schema := &types.TableSchema{}
	for _, c := range td.Columns {
		dt, err := types.ParseDataType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		schema.Columns = append(schema.Columns, types.ColumnSchema{Name: c.Name, Type: dt})
	}
	info := &store.TableInfo{Schema: schema, Partitioned: len(td.Partitions) > 0}
	for _, pd := range td.Partitions {
		pc, err := pd.partitionColumn(schema)
		if err != nil {
			return nil, err
		}
		info.Partitions = append(info.Partitions, pc)
	}
	return info, nil
}

func (pd partitionDef) partitionColumn(schema *types.TableSchema) (store.PartitionColumn, error) {
	idx := schema.Index(pd.Column)
	if idx < 0 {
		return store.PartitionColumn{}, fmt.Errorf("partition column %s is not a column", pd.Column)
	}
	col := schema.Columns[idx]
	pt, err := parsePartitionType(pd.Type)
	if err != nil {
		return store.PartitionColumn{}, err
	}
	pc := store.PartitionColumn{Name: col.Name, Index: idx, Type: col.Type, PartitionType: pt}
	pc.Scheme.Buckets = pd.Buckets
	if pc.Scheme.Values, err = typedValues(pd.Values, col.Type); err != nil {
		return pc, err
	}
	for _, g := range pd.Groups {
		vs, err := typedValues(g, col.Type)
		if err != nil {
			return pc, err
		}
		pc.Scheme.Groups = append(pc.Scheme.Groups, vs)
	}
	// Build the domain once so a bad scheme fails at startup.
	if _, err := domain.New(pt, col.Type, pc.Scheme); err != nil {
		return pc, err
	}
	return pc, nil
}

func parsePartitionType(name string) (domain.PartitionType, error) {
	for _, pt := range []domain.PartitionType{
		domain.PartitionValue, domain.PartitionRange, domain.PartitionList, domain.PartitionHash,
	} {
		if strings.EqualFold(pt.String(), name) {
			return pt, nil
		}
	}
	return 0, fmt.Errorf("unknown partition type %q", name)
}

func typedValues(raw []any, dt types.DataType) ([]types.Value, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]types.Value, len(raw))
	for i, r := range raw {
		v, err := convert.Default(r, dt)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
