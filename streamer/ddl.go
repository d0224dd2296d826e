package streamer

import (
	"github.com/pingcap/parser/ast"
	"github.com/tsywkGo/go-mysql-binlog/streamer/event"
)

const (
	RenameDDL   = "RENAME"
	AlterDDL    = "ALTER"
	DropDDL     = "DROP"
	CreateDDL   = "CREATE"
	TruncateDDL = "TRUNCATE"
)

// parseStmt lists the tables a DDL statement changes. Other statements yield nothing.
func parseStmt(stmt ast.StmtNode) (ns []event.DDL) {
	switch t := stmt.(type) {
	case *ast.RenameTableStmt:
		for _, tableInfo := range t.TableToTables {
			n := event.DDL{
				Schema: tableInfo.OldTable.Schema.String(),
				Table:  tableInfo.OldTable.Name.String(),
				Action: RenameDDL,
			}
			ns = append(ns, n)
		}
	case *ast.AlterTableStmt:
		n := event.DDL{
			Schema: t.Table.Schema.String(),
			Table:  t.Table.Name.String(),
			Action: AlterDDL,
		}
		ns = []event.DDL{n}
	case *ast.DropTableStmt:
		for _, table := range t.Tables {
			n := event.DDL{
				Schema: table.Schema.String(),
				Table:  table.Name.String(),
				Action: DropDDL,
			}
			ns = append(ns, n)
		}
	case *ast.CreateTableStmt:
		n := event.DDL{
			Schema: t.Table.Schema.String(),
			Table:  t.Table.Name.String(),
			Action: CreateDDL,
		}
		ns = []event.DDL{n}
	case *ast.TruncateTableStmt:
		n := event.DDL{
			Schema: t.Table.Schema.String(),
			Table:  t.Table.Name.String(),
			Action: TruncateDDL,
		}
		ns = []event.DDL{n}
	}
	return
}
