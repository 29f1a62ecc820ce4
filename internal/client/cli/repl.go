package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn and printFn are test seams for user-facing output. In tests,
// replace them with stubs.
var printlnFn = fmt.Println
var printFn = fmt.Print

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	hasAccount() bool

	Accounts(ctx context.Context) error
	AddAccount(ctx context.Context) error
	Use(ctx context.Context, id string) error
	RemoveAccount(ctx context.Context, id string) error
	Import(ctx context.Context, path string) error
	Export(ctx context.Context, path string) error
	Test(ctx context.Context) error
	Logins(ctx context.Context) error

	Send(ctx context.Context, text string) error
	SendFile(ctx context.Context, path string) error
	List(ctx context.Context) error
	Delete(ctx context.Context, ids []string) error
	Retry(ctx context.Context, id string) error
	Download(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
	Fast(ctx context.Context) error
	Sync(ctx context.Context) error
}

const (
	helpAccounts = "Account commands: accounts, addaccount, use <id>, rmaccount <id>, import <file>, export <file>"
	helpChat     = "Chat commands: send <text>, sendfile <path>, (l)ist, delete <id...>, retry <id>, download <id>, cancel <id>, fast, sync, test, logins"
)

// runREPL starts a simple read–eval–print loop for the cloudchat CLI.
//
// It reads a line from reader, parses the first token as the command, and
// dispatches to methods on 'a'. The rest of the line is the argument; for
// send and sendfile it is taken verbatim so texts and paths may contain
// spaces. Message ids may be abbreviated to a unique prefix. The loop exits
// on EOF or when the user types "exit" or "quit".
//
// Chat commands need an active account; without one only the account
// commands are offered. Errors returned by handlers are printed and the
// loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printFn(fmt.Sprintf("cc %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		if dispatch(ctx, a, cmd, rest) {
			printlnFn("Bye!")
			return
		}
	}
}

// dispatch runs one command and reports whether the REPL should stop.
func dispatch(ctx context.Context, a execIface, cmd, arg string) bool {
	var err error

	switch cmd {
	case "help":
		printlnFn(helpAccounts)
		if a.hasAccount() {
			printlnFn(helpChat)
		}
		printlnFn("exit | quit")

	case "accounts":
		err = a.Accounts(ctx)
	case "addaccount":
		err = a.AddAccount(ctx)
	case "use":
		err = withArg(arg, "use <id>", func(id string) error { return a.Use(ctx, id) })
	case "rmaccount":
		err = withArg(arg, "rmaccount <id>", func(id string) error { return a.RemoveAccount(ctx, id) })
	case "import":
		err = withArg(arg, "import <file>", func(p string) error { return a.Import(ctx, p) })
	case "export":
		err = withArg(arg, "export <file>", func(p string) error { return a.Export(ctx, p) })

	case "send":
		err = withArg(arg, "send <text>", func(text string) error { return a.Send(ctx, text) })
	case "sendfile":
		err = withArg(arg, "sendfile <path>", func(p string) error { return a.SendFile(ctx, p) })
	case "l", "list":
		err = a.List(ctx)
	case "delete":
		err = withArg(arg, "delete <id...>", func(ids string) error { return a.Delete(ctx, strings.Fields(ids)) })
	case "retry":
		err = withArg(arg, "retry <id>", func(id string) error { return a.Retry(ctx, id) })
	case "download":
		err = withArg(arg, "download <id>", func(id string) error { return a.Download(ctx, id) })
	case "cancel":
		err = withArg(arg, "cancel <id>", func(id string) error { return a.Cancel(ctx, id) })
	case "fast":
		err = a.Fast(ctx)
	case "sync":
		err = a.Sync(ctx)
	case "test":
		err = a.Test(ctx)
	case "logins":
		err = a.Logins(ctx)

	case "exit", "quit":
		return true

	default:
		printlnFn("Unknown command:", cmd)
	}

	if err != nil {
		printlnFn("Error:", err)
	}
	return false
}

// errUsage reports a missing command argument.
var errUsage = errors.New("missing argument")

func withArg(arg, usage string, fn func(string) error) error {
	if arg == "" {
		return fmt.Errorf("%w, usage: %s", errUsage, usage)
	}
	return fn(arg)
}
