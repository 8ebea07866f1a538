// Package sqlfrontend is a small, permissive SQL dialect over the engine's
// four operations: CREATE TABLE, INSERT INTO, SELECT and DELETE. It is
// deliberately regex/string-driven rather than a real grammar parser —
// BadSUBD's dialect accepts a narrow and slightly loose surface (bareword
// values coerce to int when they look numeric, WHERE is equality-only) that
// a conformant SQL grammar would reject outright.
package sqlfrontend

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"badsubd/engine"
	"badsubd/storage"
)

// Kind identifies which operation a parsed Statement performs.
type Kind string

const (
	KindCreateTable Kind = "CREATE_TABLE"
	KindInsert      Kind = "INSERT"
	KindSelect      Kind = "SELECT"
	KindDelete      Kind = "DELETE"
)

// Result is the tagged-union outcome of executing one statement.
type Result struct {
	Kind Kind

	// CreateTable: always true on success.
	Created bool

	// Insert: the new row's zero-based heap index.
	InsertedIndex int64

	// Select: the matching rows, each column-name -> value.
	Rows []map[string]any

	// Delete: number of rows tombstoned, or -1 for a full-table truncate.
	DeletedCount int64
}

var (
	createTablePrefix = regexp.MustCompile(`(?i)^CREATE\s+TABLE\s+`)
	createTableShape  = regexp.MustCompile(`(?is)^(\w+)\s*\((.*)\)\s*$`)
	insertIntoPrefix  = regexp.MustCompile(`(?i)^INSERT\s+INTO\s+`)
	insertShape       = regexp.MustCompile(`(?is)(\w+)\s*(?:\(([^)]+)\))?\s*VALUES\s*\(([^)]+)\)`)
	selectPrefix      = regexp.MustCompile(`(?i)^SELECT\s+`)
	fromClause        = regexp.MustCompile(`(?is)FROM\s+(\w+)(?:\s+WHERE\s+(.*))?$`)
	deletePrefix      = regexp.MustCompile(`(?i)^DELETE\s+`)
	whereCondition    = regexp.MustCompile(`(\w+)\s*=\s*([^\s,]+)`)
	varcharSize       = regexp.MustCompile(`\((\d+)\)`)
)

// Frontend executes statements against a bound engine.
type Frontend struct {
	eng *engine.Engine
}

// New binds a Frontend to an engine.
func New(eng *engine.Engine) *Frontend {
	return &Frontend{eng: eng}
}

// Execute parses and runs a single SQL statement.
func (f *Frontend) Execute(sql string) (Result, error) {
	sql = strings.TrimSpace(strings.NewReplacer("\n", " ", "\t", " ").Replace(sql))
	if sql == "" {
		return Result{}, storage.NewError(storage.BadStatement, "empty statement")
	}

	upper := strings.ToUpper(sql)
	switch {
	case strings.HasPrefix(upper, "CREATE TABLE"):
		return f.execCreateTable(sql)
	case strings.HasPrefix(upper, "INSERT INTO"):
		return f.execInsert(sql)
	case strings.HasPrefix(upper, "SELECT"):
		return f.execSelect(sql)
	case strings.HasPrefix(upper, "DELETE"):
		return f.execDelete(sql)
	default:
		return Result{}, storage.NewError(storage.UnsupportedStatement, fmt.Sprintf("unsupported SQL statement: %s", sql))
	}
}

func (f *Frontend) execCreateTable(sql string) (Result, error) {
	body := createTablePrefix.ReplaceAllString(sql, "")
	m := createTableShape.FindStringSubmatch(body)
	if m == nil {
		return Result{}, storage.NewError(storage.BadStatement, "invalid CREATE TABLE syntax")
	}
	tableName, columnsStr := m[1], m[2]

	columns, err := parseColumnDefs(columnsStr, tableName)
	if err != nil {
		return Result{}, err
	}

	schema := storage.Schema{TableName: tableName, Columns: columns}
	if err := f.eng.CreateTable(schema); err != nil {
		return Result{}, err
	}
	return Result{Kind: KindCreateTable, Created: true}, nil
}

// parseColumnDefs splits a column-definition list on top-level commas
// (honoring parens, for VARCHAR(50)) and parses each "name TYPE[(size)]"
// definition.
func parseColumnDefs(columnsStr, tableName string) ([]storage.Column, error) {
	defs := splitTopLevel(columnsStr, ',')

	columns := make([]storage.Column, 0, len(defs))
	for _, def := range defs {
		def = strings.TrimSpace(def)
		if def == "" {
			continue
		}
		parts := strings.Fields(def)
		if len(parts) < 2 {
			return nil, storage.NewError(storage.BadStatement, fmt.Sprintf("invalid column definition: %q", def))
		}

		name := parts[0]
		colType := strings.ToUpper(parts[1])

		switch {
		case colType == "INT":
			columns = append(columns, storage.Column{Name: name, Type: storage.Int})
		case strings.HasPrefix(colType, "VARCHAR"):
			size := 255
			if sm := varcharSize.FindStringSubmatch(def); sm != nil {
				n, err := strconv.Atoi(sm[1])
				if err != nil {
					return nil, storage.NewError(storage.BadStatement, fmt.Sprintf("invalid VARCHAR size in %q", def))
				}
				size = n
			}
			columns = append(columns, storage.Column{Name: name, Type: storage.Varchar, Size: size})
		default:
			return nil, storage.NewError(storage.BadStatement, fmt.Sprintf("unsupported data type: %s", colType))
		}
	}

	if len(columns) == 0 {
		return nil, storage.NewError(storage.BadStatement, fmt.Sprintf("table %q has no columns", tableName))
	}
	return columns, nil
}

// splitTopLevel splits s on sep, ignoring occurrences nested inside
// parentheses.
func splitTopLevel(s string, sep rune) []string {
	var parts []string
	var cur strings.Builder
	depth := 0
	for _, ch := range s {
		switch {
		case ch == '(':
			depth++
			cur.WriteRune(ch)
		case ch == ')':
			depth--
			cur.WriteRune(ch)
		case ch == sep && depth == 0:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(ch)
		}
	}
	if cur.Len() > 0 || len(parts) > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

func (f *Frontend) execInsert(sql string) (Result, error) {
	body := insertIntoPrefix.ReplaceAllString(sql, "")
	m := insertShape.FindStringSubmatch(body)
	if m == nil {
		return Result{}, storage.NewError(storage.BadStatement, "invalid INSERT syntax")
	}
	tableName, columnsStr, valuesStr := m[1], m[2], m[3]

	values, err := parseValueList(valuesStr)
	if err != nil {
		return Result{}, err
	}

	var columnNames []string
	if columnsStr != "" {
		for _, c := range strings.Split(columnsStr, ",") {
			columnNames = append(columnNames, strings.TrimSpace(c))
		}
		if len(columnNames) != len(values) {
			return Result{}, storage.NewError(storage.BadStatement, "number of columns doesn't match number of values")
		}
	} else {
		info, err := f.eng.GetTableInfo(tableName)
		if err != nil {
			return Result{}, err
		}
		for _, c := range info.Columns {
			columnNames = append(columnNames, c.Name)
		}
		if len(columnNames) != len(values) {
			return Result{}, storage.NewError(storage.BadStatement, fmt.Sprintf("number of values doesn't match table schema for %q", tableName))
		}
	}

	row := make(map[string]any, len(columnNames))
	for i, name := range columnNames {
		row[name] = values[i]
	}

	idx, err := f.eng.Insert(tableName, row)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindInsert, InsertedIndex: idx}, nil
}

// parseValueList splits a VALUES(...) payload on top-level commas,
// honoring quoted strings (single or double) and nested parens, then
// converts each literal.
func parseValueList(valuesStr string) ([]any, error) {
	var values []any
	var cur strings.Builder
	inQuotes := false
	var quoteChar rune
	depth := 0

	flush := func() {
		if strings.TrimSpace(cur.String()) != "" {
			values = append(values, convertLiteral(strings.TrimSpace(cur.String())))
		}
		cur.Reset()
	}

	for _, ch := range valuesStr {
		switch {
		case (ch == '\'' || ch == '"') && !inQuotes:
			inQuotes = true
			quoteChar = ch
			cur.WriteRune(ch)
		case inQuotes && ch == quoteChar:
			inQuotes = false
			cur.WriteRune(ch)
		case ch == '(' && !inQuotes:
			depth++
			cur.WriteRune(ch)
		case ch == ')' && !inQuotes:
			depth--
			cur.WriteRune(ch)
		case ch == ',' && !inQuotes && depth == 0:
			flush()
		default:
			cur.WriteRune(ch)
		}
	}
	flush()

	return values, nil
}

// convertLiteral coerces one value token to its Go representation:
// quoted strings lose their quotes, digit-only tokens become uint64,
// "NULL" (any case) becomes nil, anything else is left as a bareword
// string.
func convertLiteral(value string) any {
	if len(value) >= 2 {
		if (value[0] == '\'' && value[len(value)-1] == '\'') || (value[0] == '"' && value[len(value)-1] == '"') {
			return value[1 : len(value)-1]
		}
	}
	if strings.EqualFold(value, "NULL") {
		return nil
	}
	if n, err := strconv.ParseUint(value, 10, 64); err == nil {
		return n
	}
	return value
}

func (f *Frontend) execSelect(sql string) (Result, error) {
	body := selectPrefix.ReplaceAllString(sql, "")

	m := fromClause.FindStringSubmatch(body)
	if m == nil {
		return Result{}, storage.NewError(storage.BadStatement, "invalid SELECT syntax")
	}
	tableName, whereClause := m[1], m[2]

	columnsStr := strings.TrimSpace(body[:fromClause.FindStringIndex(body)[0]])
	var projection []string
	if columnsStr != "*" {
		for _, c := range strings.Split(columnsStr, ",") {
			projection = append(projection, strings.TrimSpace(c))
		}
	}

	where := parseWhere(whereClause)

	rows, err := f.eng.Select(tableName, where)
	if err != nil {
		return Result{}, err
	}

	if projection != nil {
		rows = projectColumns(rows, projection)
	}

	return Result{Kind: KindSelect, Rows: rows}, nil
}

func parseWhere(clause string) map[string]any {
	clause = strings.TrimSpace(clause)
	if clause == "" {
		return nil
	}
	conditions := make(map[string]any)
	for _, m := range whereCondition.FindAllStringSubmatch(clause, -1) {
		conditions[m[1]] = convertLiteral(m[2])
	}
	return conditions
}

func projectColumns(rows []map[string]any, projection []string) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		p := make(map[string]any, len(projection))
		for _, col := range projection {
			if v, ok := row[col]; ok {
				p[col] = v
			}
		}
		out[i] = p
	}
	return out
}

func (f *Frontend) execDelete(sql string) (Result, error) {
	body := deletePrefix.ReplaceAllString(sql, "")

	// "DELETE * FROM t ..." and "DELETE FROM t ..." both reduce to the
	// same FROM/WHERE shape once the leading DELETE keyword is gone.
	m := fromClause.FindStringSubmatch(body)
	if m == nil {
		return Result{}, storage.NewError(storage.BadStatement, "invalid DELETE syntax")
	}
	tableName, whereClause := m[1], m[2]

	where := parseWhere(whereClause)
	count, err := f.eng.Delete(tableName, where)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindDelete, DeletedCount: count}, nil
}
