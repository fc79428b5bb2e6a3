// ═══════════════════════════════════════════════════════════════════════════
// MINIKERN Command Shell
// ═══════════════════════════════════════════════════════════════════════════
//
// A REPL over the console byte source. The shell owns no kernel state: it
// parses text commands and invokes core operations, nothing more. In
// simulation mode `tick n` stands in for the timer interrupt.
//
// ═══════════════════════════════════════════════════════════════════════════

package shell

import (
	"fmt"
	"strconv"
	"strings"

	"minikern"
	"minikern/console"
	"minikern/mem"
	"minikern/proc"
)

// demoEntry is the code address handed to shell-created processes. The
// engine never executes it; it only flows into the context record.
const demoEntry mem.Addr = 0x0010_0000

// maxTickBatch bounds one `tick n` command so a typo cannot wedge the
// REPL for minutes.
const maxTickBatch = 1_000_000

// Shell binds a kernel to its console for interactive use.
type Shell struct {
	k   *minikern.Kernel
	con *console.Console
}

// New builds a shell over a booted kernel.
func New(k *minikern.Kernel) *Shell {
	return &Shell{k: k, con: k.Console}
}

// Run reads lines from the byte source and executes them until EOF or an
// explicit exit.
func (sh *Shell) Run() {
	sh.con.PutString("minikern shell, 'help' for commands\n")
	for {
		sh.con.PutString("minikern> ")
		line, ok := sh.readLine()
		if !ok {
			sh.con.PutString("\n")
			return
		}
		if !sh.Execute(line) {
			return
		}
	}
}

// readLine collects bytes until newline. Carriage returns are dropped so
// both \n and \r\n line disciplines work; backspace edits in place.
func (sh *Shell) readLine() (string, bool) {
	var buf []byte
	for {
		b, ok := sh.con.GetByte()
		if !ok {
			return string(buf), len(buf) > 0
		}
		switch b {
		case '\n':
			return string(buf), true
		case '\r':
			// swallowed
		case 0x08, 0x7F:
			if len(buf) > 0 {
				buf = buf[:len(buf)-1]
			}
		default:
			buf = append(buf, b)
		}
	}
}

// Execute runs one command line. Returns false when the REPL should end.
func (sh *Shell) Execute(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help":
		sh.printHelp()
	case "memstats":
		sh.k.Mem.PrintStats(sh.con)
	case "memtest":
		sh.runMemTest()
	case "ps":
		sh.k.Proc.PrintTable(sh.con)
		sh.printSchedStatus()
	case "proctest":
		sh.runProcTest()
	case "create":
		sh.cmdCreate(args)
	case "tick":
		sh.cmdTick(args)
	case "kill":
		sh.cmdKill(args)
	case "info":
		sh.cmdInfo(args)
	case "schedstats":
		sh.k.Sched.PrintStats(sh.con)
	case "schedconf":
		sh.k.Sched.PrintConfig(sh.con)
	case "clear":
		sh.con.ClearScreen()
	case "exit", "quit":
		return false
	default:
		sh.con.PutString("unknown command '" + cmd + "', try 'help'\n")
	}
	return true
}

func (sh *Shell) printHelp() {
	sh.con.PutString(`commands:
  help                          this text
  memstats                      heap and stack counters
  memtest                       built-in memory scenarios
  ps                            process table + scheduler status
  proctest                      built-in process scenarios
  create <name> <prio> <ticks>  create process (prio: critical|high|normal|low)
  tick [n]                      advance the scheduler n ticks (default 1)
  kill <pid>                    terminate a process
  info <pid>                    process detail
  schedstats                    scheduler counters
  schedconf                     scheduler configuration
  clear                         clear screen
  exit                          leave the shell
`)
}

func (sh *Shell) printSchedStatus() {
	state := "stopped"
	if sh.k.Sched.Running() {
		state = "running"
	}
	cur := "idle"
	if p := sh.k.Proc.Current(); p != nil {
		cur = fmt.Sprintf("pid %d (%s)", p.PID, p.Name)
	}
	sh.con.PutString(fmt.Sprintf("scheduler %s, policy %s, tick %d, cpu: %s\n",
		state, sh.k.Sched.Configuration().Policy, sh.k.Sched.Now(), cur))
}

// ═══════════════════════════════════════════════════════════════════════════
// COMMANDS
// ═══════════════════════════════════════════════════════════════════════════

// ParsePriority accepts the full token, its first letter, or the numeric
// level, case-insensitive.
func ParsePriority(tok string) (proc.Priority, bool) {
	switch strings.ToLower(tok) {
	case "critical", "c", "3":
		return proc.PriorityCritical, true
	case "high", "h", "2":
		return proc.PriorityHigh, true
	case "normal", "n", "1":
		return proc.PriorityNormal, true
	case "low", "l", "0":
		return proc.PriorityLow, true
	}
	return 0, false
}

func (sh *Shell) cmdCreate(args []string) {
	if len(args) != 3 {
		sh.con.PutString("usage: create <name> <priority> <ticks>\n")
		return
	}
	pr, ok := ParsePriority(args[1])
	if !ok {
		sh.con.PutString("bad priority '" + args[1] + "' (critical|high|normal|low)\n")
		return
	}
	ticks, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil {
		sh.con.PutString("bad tick count '" + args[2] + "'\n")
		return
	}
	p := sh.k.Proc.Create(args[0], demoEntry, pr, uint32(ticks))
	if p == nil {
		sh.con.PutString("create failed\n")
		return
	}
	sh.con.PutString(fmt.Sprintf("created pid %d\n", p.PID))
}

func (sh *Shell) cmdTick(args []string) {
	n := uint64(1)
	if len(args) > 0 {
		v, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil || v == 0 {
			sh.con.PutString("usage: tick [n]\n")
			return
		}
		n = v
	}
	if n > maxTickBatch {
		n = maxTickBatch
	}
	for i := uint64(0); i < n; i++ {
		sh.k.Sched.Tick()
	}
	sh.con.PutString(fmt.Sprintf("advanced %d tick(s), now at %d\n", n, sh.k.Sched.Now()))
}

func (sh *Shell) cmdKill(args []string) {
	pid, ok := sh.parsePID(args, "kill <pid>")
	if !ok {
		return
	}
	if sh.k.Proc.Terminate(pid) {
		sh.con.PutString(fmt.Sprintf("killed pid %d\n", pid))
	} else {
		sh.con.PutString(fmt.Sprintf("no such process: %d\n", pid))
	}
}

func (sh *Shell) cmdInfo(args []string) {
	pid, ok := sh.parsePID(args, "info <pid>")
	if !ok {
		return
	}
	sh.k.Proc.PrintInfo(sh.con, pid)
}

func (sh *Shell) parsePID(args []string, usage string) (proc.PID, bool) {
	if len(args) != 1 {
		sh.con.PutString("usage: " + usage + "\n")
		return 0, false
	}
	v, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		sh.con.PutString("bad pid '" + args[0] + "'\n")
		return 0, false
	}
	return proc.PID(v), true
}
