package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/mna/mainer"

	"github.com/wtstar/wt/lang/bytecode"
	"github.com/wtstar/wt/lang/machine"
)

const binName = "wtvm"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] <command> <path>
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] <command> <path> [-- <arg>...]
       %[1]s -h|--help
       %[1]s -v|--version

Bytecode assembler, runner and inspector for the WT virtual machine.

The <command> can be one of:
       asm                       Assemble a textual program into a binary
                                 container, written to -o (default a.out).
       run                       Load a binary container, read input from
                                 stdin, execute it, write output to stdout.
       dump                      Print a binary container's header, and
                                 optionally its code and debug section.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.

Valid flag options for the <asm> command are:
       -o --out                  Output file path (default a.out).

Valid flag options for the <run> command are:
       -t --trace                Print a per-instruction execution trace
                                 to stderr.
       -i --io-layout            Print the input/output variable layout
                                 before executing.

Valid flag options for the <dump> command are:
       -c --code                 Include a disassembly of the code section.
       -g --debug                Include the debug section, as YAML.

Step limit, trace and a memory-mode override can also be set via the
WTVM_STEP_LIMIT, WTVM_TRACE and WTVM_MEMMODE environment variables.
`, binName)
)

// Config holds the environment-derived defaults for the run command: a
// step budget per Execute call (0 means unbounded), whether to trace by
// default, and an optional memory-mode override useful for locally
// re-running a program under a stricter mode than it was compiled with.
type Config struct {
	StepLimit       int    `env:"WTVM_STEP_LIMIT" envDefault:"0"`
	Trace           bool   `env:"WTVM_TRACE" envDefault:"false"`
	MemModeOverride string `env:"WTVM_MEMMODE" envDefault:""`
}

func loadConfig() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("reading environment configuration: %w", err)
	}
	return c, nil
}

type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`

	Out      string `flag:"o,out"`
	Trace    bool   `flag:"t,trace"`
	IOLayout bool   `flag:"i,io-layout"`
	Code     bool   `flag:"c,code"`
	Debug    bool   `flag:"g,debug"`

	cfg Config

	args  []string
	flags map[string]bool
	cmdFn func(context.Context, mainer.Stdio, []string) error
}

func (c *Cmd) SetArgs(args []string) {
	c.args = args
}

func (c *Cmd) SetFlags(flags map[string]bool) {
	c.flags = flags
}

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}

	if len(c.args) == 0 {
		return errors.New("no command specified")
	}

	cmdName := c.args[0]

	commands := buildCmds(c)
	c.cmdFn = commands[cmdName]
	if c.cmdFn == nil {
		return fmt.Errorf("unknown command: %s", c.args[0])
	}

	if len(c.args[1:]) == 0 {
		return fmt.Errorf("%s: a file path must be provided", cmdName)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c.cfg = cfg
	if c.flags["trace"] {
		c.cfg.Trace = true
	}

	return nil
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{
		EnvVars:   false,
		EnvPrefix: binName + "_",
	}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success

	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	if err := c.cmdFn(ctx, stdio, c.args[1:]); err != nil {
		fmt.Fprintf(stdio.Stderr, "%s: %s\n", c.args[0], err)
		return mainer.Failure
	}
	return mainer.Success
}

// Asm assembles the textual program at args[0] and writes the binary
// container to Cmd.Out (default a.out).
func (c *Cmd) Asm(_ context.Context, stdio mainer.Stdio, args []string) error {
	src, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	bin, err := bytecode.Assemble(args[0], src)
	if err != nil {
		return err
	}
	out := c.Out
	if out == "" {
		out = "a.out"
	}
	return os.WriteFile(out, bin, 0644)
}

// Run loads the binary container at args[0], reads input from stdin,
// executes it to completion (resuming across step-budget and breakpoint
// stops) and writes output to stdout.
func (c *Cmd) Run(_ context.Context, stdio mainer.Stdio, args []string) error {
	bin, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	p, err := bytecode.Parse(bin)
	if err != nil {
		return err
	}
	if c.cfg.MemModeOverride != "" {
		mode, err := parseMemMode(c.cfg.MemModeOverride)
		if err != nil {
			return err
		}
		p.Header.MemMode = mode
	}

	if c.IOLayout {
		fmt.Fprint(stdio.Stdout, bytecode.DescribeVariables("input", p.Input))
		fmt.Fprint(stdio.Stdout, bytecode.DescribeVariables("output", p.Output))
	}

	m, err := machine.NewMachine(p)
	if err != nil {
		return err
	}
	if c.cfg.Trace {
		m.Trace = stdio.Stderr
	}
	if err := m.ReadInput(stdio.Stdin); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	for {
		res, err := m.Execute(c.cfg.StepLimit)
		if err != nil {
			return fmt.Errorf("executing: %w", err)
		}
		switch res.Status {
		case machine.StatusHalted:
			return m.WriteOutput(stdio.Stdout)
		case machine.StatusBreakpointHit:
			fmt.Fprintf(stdio.Stderr, "breakpoint %d hit, threads=%v\n", res.BreakpointID, res.Threads)
		case machine.StatusBudgetExhausted:
			// resume with another Execute call
		}
	}
}

// Dump prints the header of the binary container at args[0], and
// optionally its disassembled code and its debug section as YAML.
func (c *Cmd) Dump(_ context.Context, stdio mainer.Stdio, args []string) error {
	bin, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	p, err := bytecode.Parse(bin)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdio.Stdout, "version: %d\nmemmode: %s\nglobalsize: %d\n", p.Header.Version, p.Header.MemMode.Name(), p.Header.GlobalSize)
	fmt.Fprint(stdio.Stdout, bytecode.DescribeVariables("input", p.Input))
	fmt.Fprint(stdio.Stdout, bytecode.DescribeVariables("output", p.Output))

	if c.Code {
		fmt.Fprint(stdio.Stdout, bytecode.Disassemble(p))
	}
	if c.Debug {
		y, err := bytecode.DumpDebugInfo(p.Debug)
		if err != nil {
			return err
		}
		if _, err := stdio.Stdout.Write(y); err != nil {
			return err
		}
	}
	return nil
}

func parseMemMode(s string) (bytecode.MemMode, error) {
	switch strings.ToUpper(s) {
	case "EREW":
		return bytecode.ModeEREW, nil
	case "CREW":
		return bytecode.ModeCREW, nil
	case "CCRCW":
		return bytecode.ModeCCRCW, nil
	default:
		return 0, fmt.Errorf("invalid WTVM_MEMMODE: %q", s)
	}
}

// valid commands are those that take a mainer.Stdio and a slice of strings as
// input, and return an error as output.
func buildCmds(v interface{}) map[string]func(context.Context, mainer.Stdio, []string) error {
	cmds := make(map[string]func(context.Context, mainer.Stdio, []string) error)

	vv := reflect.ValueOf(v)
	vt := vv.Type()
	for i := 0; i < vt.NumMethod(); i++ {
		m := vt.Method(i)
		mt := m.Type

		// must take 4 parameters (including receiver) and return 1
		if mt.NumIn() != 4 || mt.NumOut() != 1 {
			continue
		}

		if rt := mt.Out(0); rt.Kind() != reflect.Interface || rt.Name() != "error" {
			continue
		}
		if p0 := mt.In(0); p0.Kind() != reflect.Ptr || p0.Elem().Name() != "Cmd" {
			continue
		}
		if p1 := mt.In(1); p1.Kind() != reflect.Interface || p1.Name() != "Context" {
			continue
		}
		if p2 := mt.In(2); p2.Kind() != reflect.Struct || p2.Name() != "Stdio" {
			continue
		}
		if p3 := mt.In(3); p3.Kind() != reflect.Slice || p3.Elem().Name() != "string" {
			continue
		}
		cmds[strings.ToLower(m.Name)] = vv.Method(i).Interface().(func(context.Context, mainer.Stdio, []string) error)
	}
	return cmds
}
