package meta

import (
	"fmt"

	"github.com/go-mysql-org/go-mysql/schema"
)

// IMeta maps a binlog table id to its resolved column schema.
// Entries are never evicted or refreshed for the lifetime of a session.
type IMeta interface {
	Get(tableID uint64) (*Table, bool)
	Insert(tbMeta *Table) error
	Len() int
	Close() error
}

// Column is one row of information_schema.columns, in ordinal order.
type Column struct {
	Name         string
	Collation    string
	CharacterSet string
	Comment      string
	ColumnType   string
}

// Table is a resolved TableMap entry.
type Table struct {
	ID      uint64
	Schema  string
	Name    string
	Columns []Column

	// Info is the go-mysql view of the same columns, with typed classification.
	Info *schema.Table
}

func NewTable(tableID uint64, dbName, tbName string, columns []Column) *Table {
	info := &schema.Table{
		Schema:  dbName,
		Name:    tbName,
		Columns: make([]schema.TableColumn, 0, len(columns)),
		Indexes: make([]*schema.Index, 0),
	}
	for _, c := range columns {
		info.AddColumn(c.Name, c.ColumnType, c.Collation, "")
	}
	return &Table{
		ID:      tableID,
		Schema:  dbName,
		Name:    tbName,
		Columns: columns,
		Info:    info,
	}
}

func (t *Table) String() string {
	return fmt.Sprintf("%s.%s#%d", t.Schema, t.Name, t.ID)
}

// ColumnNames returns the column names in ordinal order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}
