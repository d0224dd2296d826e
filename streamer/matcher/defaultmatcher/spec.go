package defaultmatcher

import (
	"sort"
	"strings"

	"github.com/pingcap/errors"
)

// TableSet is the value of a schema filter entry: every table of the schema
// when All is set, otherwise the listed tables.
type TableSet struct {
	All    bool
	Tables map[string]struct{}
}

func AllTables() TableSet {
	return TableSet{All: true}
}

func Tables(names ...string) TableSet {
	s := TableSet{Tables: make(map[string]struct{}, len(names))}
	for _, name := range names {
		s.Tables[name] = struct{}{}
	}
	return s
}

func (s TableSet) Contains(tbName string) bool {
	if s.All {
		return true
	}
	_, ok := s.Tables[tbName]
	return ok
}

func (s TableSet) String() string {
	if s.All {
		return "*"
	}
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return "[" + strings.Join(names, ",") + "]"
}

// UnmarshalTOML accepts `true` or an array of table names.
func (s *TableSet) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case bool:
		if !v {
			return errors.New("schema filter value must be true or a list of tables")
		}
		*s = AllTables()
	case []interface{}:
		names := make([]string, 0, len(v))
		for _, item := range v {
			name, ok := item.(string)
			if !ok {
				return errors.Errorf("table name %v is %T, not a string", item, item)
			}
			names = append(names, name)
		}
		*s = Tables(names...)
	default:
		return errors.Errorf("schema filter value %v of type %T", data, data)
	}
	return nil
}

// SchemaSet maps a schema name to the tables selected in it.
type SchemaSet map[string]TableSet

func (m SchemaSet) Contains(dbName, tbName string) bool {
	tables, ok := m[dbName]
	return ok && tables.Contains(tbName)
}

// FilterSpec is the filter part of a session configuration. A nil list or
// map means "not configured"; a configured but empty one selects nothing.
type FilterSpec struct {
	IncludeEvents []string  `toml:"include_events"`
	ExcludeEvents []string  `toml:"exclude_events"`
	IncludeSchema SchemaSet `toml:"include_schema"`
	ExcludeSchema SchemaSet `toml:"exclude_schema"`
	// IncludeRegex and ExcludeRegex match "db.table", e.g. ".*\\.canal".
	IncludeRegex []string `toml:"include_regex"`
	ExcludeRegex []string `toml:"exclude_regex"`
}

// Clone returns a deep copy, so a running session never shares maps with
// the caller.
func (f FilterSpec) Clone() FilterSpec {
	return FilterSpec{
		IncludeEvents: cloneStrings(f.IncludeEvents),
		ExcludeEvents: cloneStrings(f.ExcludeEvents),
		IncludeSchema: cloneSchemaSet(f.IncludeSchema),
		ExcludeSchema: cloneSchemaSet(f.ExcludeSchema),
		IncludeRegex:  cloneStrings(f.IncludeRegex),
		ExcludeRegex:  cloneStrings(f.ExcludeRegex),
	}
}

func cloneStrings(ss []string) []string {
	if ss == nil {
		return nil
	}
	return append(make([]string, 0, len(ss)), ss...)
}

func cloneSchemaSet(m SchemaSet) SchemaSet {
	if m == nil {
		return nil
	}
	out := make(SchemaSet, len(m))
	for db, tables := range m {
		if tables.All {
			out[db] = AllTables()
			continue
		}
		names := make([]string, 0, len(tables.Tables))
		for name := range tables.Tables {
			names = append(names, name)
		}
		out[db] = Tables(names...)
	}
	return out
}
