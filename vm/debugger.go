package vm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/delamarch3/stack/bytecode"
)

// ---------------------------------------------------------------------------
// Debugger: line-based REPL driving a VM under stepwise control
// ---------------------------------------------------------------------------

const debuggerUsage = `commands:
  s          step one instruction (empty line repeats)
  c          continue until breakpoint, exit or trap
  b LBL|OFF  set breakpoint at label or code offset
  db LBL|OFF delete breakpoint
  ls         list breakpoints
  dis [N]    disassemble from pc, up to N instructions (default 16)
  v IDX[.W]  print local slot IDX as width W (b, w or d; default w)
  st         print the operand stack
  bt         print backtrace
  q          quit`

// Debugger owns a VM instance and steps it from a command loop, one
// VM.Step call per instruction, checking breakpoints against the pc after
// each step. It does not install a pre-instruction hook on the VM; stop
// lines decode the instruction at the current pc.
type Debugger struct {
	vm          *VM
	img         *bytecode.Image
	dbg         *bytecode.DebugInfo // optional source map, may be nil
	breakpoints map[uint32]struct{}

	in    io.Reader
	out   io.Writer
	color bool

	finished bool
}

// NewDebugger creates a debugger REPL reading commands from in and
// writing to out. dbg may be nil when no sidecar was found.
func NewDebugger(v *VM, dbg *bytecode.DebugInfo, in io.Reader, out io.Writer) *Debugger {
	return &Debugger{
		vm:          v,
		img:         v.Image(),
		dbg:         dbg,
		breakpoints: make(map[uint32]struct{}),
		in:          in,
		out:         out,
	}
}

// EnableColor switches ANSI colour on or off. The debug binary enables it
// when stdout is a terminal.
func (d *Debugger) EnableColor(on bool) {
	d.color = on
}

// Run executes the command loop until q or EOF.
func (d *Debugger) Run() error {
	d.printLocation()

	scanner := bufio.NewScanner(d.in)
	d.prompt()
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			line = "s"
		}

		if quit := d.evaluate(line); quit {
			return nil
		}
		d.prompt()
	}

	return scanner.Err()
}

func (d *Debugger) prompt() {
	fmt.Fprint(d.out, d.paint("\x1b[90m", "(sdb) "))
}

// paint wraps s in an ANSI sequence when colour is enabled.
func (d *Debugger) paint(code, s string) string {
	if !d.color {
		return s
	}
	return code + s + "\x1b[0m"
}

// evaluate runs one command line. Returns true on quit.
func (d *Debugger) evaluate(line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "s":
		d.step()
	case "c":
		d.resume()
	case "b":
		d.setBreakpoint(args)
	case "db":
		d.deleteBreakpoint(args)
	case "ls":
		d.listBreakpoints()
	case "dis":
		d.disassemble(args)
	case "v":
		d.variable(args)
	case "st":
		fmt.Fprintln(d.out, d.currentFrame().OpStack.String())
	case "bt":
		d.backtrace()
	case "q":
		return true
	default:
		fmt.Fprintf(d.out, "unknown command: %s\n%s\n", cmd, debuggerUsage)
	}

	return false
}

// step executes exactly one instruction and reports the new location.
func (d *Debugger) step() {
	if d.finished {
		fmt.Fprintln(d.out, "no program running")
		return
	}

	if err := d.vm.Step(); err != nil {
		fmt.Fprintf(d.out, "%v\n", err)
		d.finished = true
		return
	}
	if d.vm.Halted() {
		fmt.Fprintf(d.out, "program exited with value %d\n", d.vm.ExitValue())
		d.finished = true
		return
	}

	d.printLocation()
}

// resume continues until a breakpoint matches pc, the program terminates,
// or a trap occurs.
func (d *Debugger) resume() {
	if d.finished {
		fmt.Fprintln(d.out, "no program running")
		return
	}

	for {
		if err := d.vm.Step(); err != nil {
			fmt.Fprintf(d.out, "%v\n", err)
			d.finished = true
			return
		}
		if d.vm.Halted() {
			fmt.Fprintf(d.out, "program exited with value %d\n", d.vm.ExitValue())
			d.finished = true
			return
		}
		if _, hit := d.breakpoints[d.vm.PC()]; hit {
			fmt.Fprintf(d.out, "breakpoint at %d\n", d.vm.PC())
			d.printLocation()
			return
		}
	}
}

// resolveOffset parses a breakpoint argument: a label resolved through
// the symbol table, or a numeric code offset.
func (d *Debugger) resolveOffset(arg string) (uint32, error) {
	if offset, err := strconv.ParseUint(arg, 10, 32); err == nil {
		return uint32(offset), nil
	}

	sym, ok := d.img.Lookup(arg)
	if !ok {
		return 0, fmt.Errorf("unknown label %s", arg)
	}
	if sym.Section != bytecode.SectionCode {
		return 0, fmt.Errorf("label %s is not in the code section", arg)
	}
	return sym.Offset, nil
}

// atInstructionBoundary walks the code to check the offset starts an
// instruction.
func (d *Debugger) atInstructionBoundary(offset uint32) bool {
	pos := 0
	for pos < len(d.img.Code) {
		if pos == int(offset) {
			return true
		}
		in, err := bytecode.Decode(d.img.Code, pos)
		if err != nil {
			return false
		}
		pos += in.Size
	}
	return false
}

func (d *Debugger) setBreakpoint(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(d.out, "usage: b LBL|OFF")
		return
	}

	offset, err := d.resolveOffset(args[0])
	if err != nil {
		fmt.Fprintf(d.out, "%v\n", err)
		return
	}
	if !d.atInstructionBoundary(offset) {
		fmt.Fprintf(d.out, "offset %d is not at an instruction boundary\n", offset)
		return
	}

	d.breakpoints[offset] = struct{}{}
}

func (d *Debugger) deleteBreakpoint(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(d.out, "usage: db LBL|OFF")
		return
	}

	offset, err := d.resolveOffset(args[0])
	if err != nil {
		fmt.Fprintf(d.out, "%v\n", err)
		return
	}
	if _, ok := d.breakpoints[offset]; !ok {
		fmt.Fprintf(d.out, "no breakpoint at %d\n", offset)
		return
	}

	delete(d.breakpoints, offset)
}

func (d *Debugger) listBreakpoints() {
	for offset := range d.breakpoints {
		line := fmt.Sprintf("%d", offset)
		if sym, ok := d.img.FuncAt(offset); ok {
			line = fmt.Sprintf("%d (%s+%d)", offset, sym.Name, offset-sym.Offset)
		}
		fmt.Fprintln(d.out, line)
	}
}

func (d *Debugger) disassemble(args []string) {
	n := 16
	if len(args) == 1 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil || parsed <= 0 {
			fmt.Fprintln(d.out, "usage: dis [N]")
			return
		}
		n = parsed
	}

	lines, err := d.img.DisassembleRange(d.vm.PC(), n)
	if err != nil {
		fmt.Fprintf(d.out, "%v\n", err)
		return
	}
	for _, line := range lines {
		fmt.Fprintln(d.out, line)
	}
}

// variable prints a local of the current frame: v IDX[.W].
func (d *Debugger) variable(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(d.out, "usage: v IDX[.W]")
		return
	}

	arg := args[0]
	width := bytecode.WidthW
	if name, suffix, ok := strings.Cut(arg, "."); ok {
		switch suffix {
		case "b":
			width = bytecode.WidthB
		case "w":
			width = bytecode.WidthW
		case "d":
			width = bytecode.WidthD
		default:
			fmt.Fprintf(d.out, "unknown width .%s (expected .b, .w or .d)\n", suffix)
			return
		}
		arg = name
	}

	index, err := strconv.ParseUint(arg, 10, 8)
	if err != nil {
		fmt.Fprintln(d.out, "usage: v IDX[.W]")
		return
	}

	fmt.Fprintln(d.out, d.currentFrame().Locals.Load(width, int(index)))
}

// backtrace walks the call stack from top to bottom, naming each frame by
// the code symbol containing its entry point.
func (d *Debugger) backtrace() {
	frames := d.vm.Frames()
	for i := len(frames) - 1; i >= 0; i-- {
		frame := frames[i]

		name := "?"
		if sym, ok := d.img.FuncAt(frame.EntryPC); ok {
			name = sym.Name
		}

		fmt.Fprintf(d.out, "%s entry=%d return=%d\n",
			d.paint("\x1b[94m", fmt.Sprintf("#%d `%s`", len(frames)-1-i, name)),
			frame.EntryPC, frame.ReturnPC)
	}
}

func (d *Debugger) currentFrame() *Frame {
	frames := d.vm.Frames()
	return frames[len(frames)-1]
}

// printLocation shows the instruction the VM is stopped at.
func (d *Debugger) printLocation() {
	pc := d.vm.PC()

	in, err := bytecode.Decode(d.img.Code, int(pc))
	if err != nil {
		fmt.Fprintf(d.out, "-> %4d: <%v>\n", pc, err)
		return
	}

	line := fmt.Sprintf("-> %4d: %s", pc, d.img.FormatInstruction(in))
	if loc, ok := d.dbg.Lookup(pc); ok {
		line += fmt.Sprintf("  ; %s", loc)
	}

	if sym, ok := d.img.SymbolAt(bytecode.SectionCode, pc); ok {
		fmt.Fprintf(d.out, "%s:\n", sym.Name)
	}
	fmt.Fprintln(d.out, d.paint("\x1b[93m", line))
}
