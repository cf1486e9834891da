// Command simpledb opens a database directory and runs SQL against it, either
// interactively or one statement at a time.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"minidb/logging"
	"minidb/server"
	"minidb/transaction"
)

// Globals are the flags shared by every command.
type Globals struct {
	Dir           string        `name:"dir" short:"d" help:"Database directory" default:"simpledb" env:"SIMPLEDB_DIR" type:"path"`
	BlockSize     int32         `name:"block-size" help:"Block size in bytes" default:"400" env:"SIMPLEDB_BLOCK_SIZE"`
	Buffers       int32         `name:"buffers" help:"Number of buffers in the pool" default:"8" env:"SIMPLEDB_BUFFERS"`
	LogFile       string        `name:"log-file" help:"Name of the write-ahead log file" default:"simpledb.log" env:"SIMPLEDB_LOG_FILE"`
	LockTimeout   time.Duration `name:"lock-timeout" help:"Maximum wait for a lock" default:"10s" env:"SIMPLEDB_LOCK_TIMEOUT"`
	BufferTimeout time.Duration `name:"buffer-timeout" help:"Maximum wait for a free buffer" default:"10s" env:"SIMPLEDB_BUFFER_TIMEOUT"`
	Isolation     string        `name:"isolation" help:"Transaction isolation level" default:"serializable" enum:"serializable,repeatable-read,read-committed,read-uncommitted" env:"SIMPLEDB_ISOLATION"`
	CacheSize     int64         `name:"layout-cache" help:"Number of table layouts cached" default:"64" env:"SIMPLEDB_LAYOUT_CACHE"`
	LogLevel      string        `name:"log-level" help:"Log level" default:"warn" enum:"debug,info,warn,error" env:"SIMPLEDB_LOG_LEVEL"`
	LogFormat     string        `name:"log-format" help:"Log format" default:"text" enum:"text,json" env:"SIMPLEDB_LOG_FORMAT"`
}

// CLI defines the command-line interface for simpledb.
var CLI struct {
	Globals

	Shell   ShellCmd   `cmd:"" default:"1" help:"Start an interactive SQL shell"`
	Exec    ExecCmd    `cmd:"" help:"Execute one SQL statement in its own transaction"`
	Recover RecoverCmd `cmd:"" help:"Recover the database and report what was undone"`
}

// open configures logging and opens the database described by the flags.
func (g *Globals) open() (*server.DB, error) {
	level, err := logging.ParseLevel(g.LogLevel)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(g.LogFormat)
	if err != nil {
		return nil, err
	}
	logger := logging.Init(level, format, os.Stderr)

	isolation, err := transaction.ParseIsolation(g.Isolation)
	if err != nil {
		return nil, err
	}

	cfg := server.DefaultConfig(g.Dir)
	cfg.BlockSize = g.BlockSize
	cfg.BufferCount = g.Buffers
	cfg.LogFile = g.LogFile
	cfg.LockTimeout = g.LockTimeout
	cfg.BufferTimeout = g.BufferTimeout
	cfg.Isolation = isolation
	cfg.LayoutCacheSize = g.CacheSize
	cfg.Logger = logger

	return server.Open(cfg)
}

type ShellCmd struct{}

func (c *ShellCmd) Run(g *Globals) error {
	db, err := g.open()
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Fprintf(os.Stdout, "simpledb shell on %s. Type :help for help.\n", g.Dir)
	return newSession(db, os.Stdout, true).run(os.Stdin)
}

type ExecCmd struct {
	SQL []string `arg:"" help:"SQL statement"`
}

func (c *ExecCmd) Run(g *Globals) error {
	db, err := g.open()
	if err != nil {
		return err
	}
	defer db.Close()

	return newSession(db, os.Stdout, false).execute(strings.Join(c.SQL, " "))
}

type RecoverCmd struct{}

func (c *RecoverCmd) Run(g *Globals) error {
	db, err := g.open()
	if err != nil {
		return err
	}

	stats := db.Stats()
	fmt.Fprintf(os.Stdout, "recovered %s: %d unfinished transactions, %d changes undone, checkpoint at LSN %d\n",
		g.Dir, stats.Recovery.Unfinished, stats.Recovery.Undone, stats.Recovery.CheckpointLSN)
	return db.Close()
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("simpledb"),
		kong.Description("A small relational database with write-ahead logging, locking and recovery"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(&CLI.Globals)
	ctx.FatalIfErrorf(err)
}
