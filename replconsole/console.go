// Package replconsole is an interactive readline-style SQL console over a
// sqlfrontend.Frontend, for local/manual use of the engine.
package replconsole

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"badsubd/logger"
	"badsubd/sqlfrontend"
	"badsubd/storage"
)

// Console runs an interactive SQL prompt.
type Console struct {
	frontend *sqlfrontend.Frontend
	liner    *liner.State
}

// New binds a Console to a frontend.
func New(frontend *sqlfrontend.Frontend) *Console {
	return &Console{frontend: frontend}
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".badsubd_history")
}

// Run starts the prompt loop, blocking until the user exits or stdin is
// closed.
func (c *Console) Run() error {
	c.liner = liner.NewLiner()
	defer c.liner.Close()

	c.liner.SetCtrlCAborts(true)
	c.liner.SetCompleter(completer)

	if f, err := os.Open(historyFile()); err == nil {
		c.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Println("badsubd - interactive SQL console")
	fmt.Println("Type 'help' for a quick reference, 'exit' to quit.")
	fmt.Println()

	for {
		line, err := c.liner.Prompt("badsubd> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		c.liner.AppendHistory(line)

		switch strings.ToLower(line) {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			c.saveHistory()
			return nil
		case "help", "?":
			printHelp()
			continue
		}

		c.execute(line)
	}

	c.saveHistory()
	return nil
}

func (c *Console) execute(statement string) {
	result, err := c.frontend.Execute(statement)
	if err != nil {
		kind, _ := storage.KindOf(err)
		fmt.Printf("error (%s): %v\n", kind, err)
		logger.Debug("statement failed: %s: %v", statement, err)
		return
	}

	switch result.Kind {
	case sqlfrontend.KindCreateTable:
		fmt.Println("OK")
	case sqlfrontend.KindInsert:
		fmt.Printf("inserted at index %d\n", result.InsertedIndex)
	case sqlfrontend.KindSelect:
		printRows(result.Rows)
	case sqlfrontend.KindDelete:
		if result.DeletedCount < 0 {
			fmt.Println("table truncated")
		} else {
			fmt.Printf("%d row(s) deleted\n", result.DeletedCount)
		}
	}
}

func printRows(rows []map[string]any) {
	if len(rows) == 0 {
		fmt.Println("(0 rows)")
		return
	}
	for _, row := range rows {
		fmt.Println(row)
	}
	fmt.Printf("(%d row(s))\n", len(rows))
}

func (c *Console) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}
	if f, err := os.Create(path); err == nil {
		c.liner.WriteHistory(f)
		f.Close()
	}
}

var keywords = []string{
	"CREATE TABLE", "INSERT INTO", "SELECT", "DELETE", "FROM", "WHERE", "VALUES",
}

func completer(line string) []string {
	var out []string
	upper := strings.ToUpper(line)
	for _, kw := range keywords {
		if strings.HasPrefix(kw, upper) {
			out = append(out, kw)
		}
	}
	return out
}

func printHelp() {
	fmt.Println(`Commands:
  CREATE TABLE name (col TYPE[, ...])
  INSERT INTO name [(col, ...)] VALUES (val, ...)
  SELECT col, ... FROM name [WHERE col = val[, ...]]
  DELETE [*] FROM name [WHERE col = val[, ...]]
  help, exit`)
}
