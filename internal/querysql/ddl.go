package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/litequery/internal/model"
)

// CreateTable builds an idempotent CREATE TABLE from column specs.
//
// AUTOINCREMENT is only emitted for an INTEGER primary key, the one column
// shape SQLite accepts it on; it makes the table keep a sqlite_sequence row.
func CreateTable(table string, specs []model.ColumnSpec) Statement {
	defs := make([]string, 0, len(specs))
	for _, s := range specs {
		var b strings.Builder
		b.WriteString(Quote(s.Name))
		b.WriteByte(' ')
		b.WriteString(s.Type)
		if s.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
			if s.AutoIncrement && s.Type == "INTEGER" {
				b.WriteString(" AUTOINCREMENT")
			}
		}
		if s.NotNull {
			b.WriteString(" NOT NULL")
		}
		if s.Unique && !s.PrimaryKey {
			b.WriteString(" UNIQUE")
		}
		defs = append(defs, b.String())
	}
	return Statement{SQL: fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", Quote(table), strings.Join(defs, ", "))}
}

// DropTable builds an idempotent DROP TABLE.
func DropTable(table string) Statement {
	return Statement{SQL: "DROP TABLE IF EXISTS " + Quote(table)}
}

// SequenceTableExists counts the sqlite_sequence entries in the schema: 1
// once any AUTOINCREMENT table has been created, 0 before.
func SequenceTableExists() Statement {
	return Statement{
		SQL:      "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
		Bindings: []any{"sqlite_sequence"},
	}
}

// SetSequence resets the auto-increment counter of a table. The next
// assigned key is value+1.
func SetSequence(table string, value int64) Statement {
	return Statement{
		SQL:      "UPDATE sqlite_sequence SET seq = ? WHERE name = ?",
		Bindings: []any{value, table},
	}
}
