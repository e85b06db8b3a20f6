// Package terminal implements functions for responding to user
// input and dispatching to appropriate backend commands.
package terminal

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cosiner/argv"
	"github.com/derekparker/trie"

	"github.com/pnp3ds/pnp/pkg/horizon"
	"github.com/pnp3ds/pnp/pkg/sandbox"
	"github.com/pnp3ds/pnp/pkg/target"
	"github.com/pnp3ds/pnp/service"
)

// maxExamineLen bounds the bytes printed by one examinemem command.
const maxExamineLen = 1000

type callContext struct {
	// Ctx is cancelled when the user interrupts the command.
	Ctx context.Context
}

type cmdfunc func(t *Term, ctx callContext, args string) error

type command struct {
	aliases        []string
	builtinAliases []string
	group          commandGroup
	helpMsg        string
	cmdFn          cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands of the pnp console.
type Commands struct {
	cmds []command

	// completions indexes every alias, nil after the aliases change.
	completions *trie.Trie
}

// byFirstAlias will sort by the first
// alias of a command.
type byFirstAlias []command

func (a byFirstAlias) Len() int           { return len(a) }
func (a byFirstAlias) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byFirstAlias) Less(i, j int) bool { return a[i].aliases[0] < a[j].aliases[0] }

// ConsoleCommands returns a Commands struct with default commands defined.
func ConsoleCommands() *Commands {
	c := &Commands{}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.`},
		{aliases: []string{"frame", "f"}, group: runCmds, cmdFn: frameCommand, helpMsg: `Presents frames.

	frame [-screen <id>] [count]

Presents count frames, one by default. Frames go to the top screen unless another screen id is given, only the top screen runs plugins. The overlay of the last frame is printed afterwards.

If the game pauses the command stops early and the frame stays pending. Press a button that resumes the game and run frame again to complete it.`},
		{aliases: []string{"restart", "r"}, group: runCmds, cmdFn: restart, helpMsg: `Launches the game again.

	restart [title id]

The game starts over from its original code and the service hooks it again. With a title id, in hexadecimal, the same code is launched as that title.`},
		{aliases: []string{"status"}, group: runCmds, cmdFn: statusCommand, helpMsg: `Prints the service status.

Shows the running title and plugin, the plugin menu, whether the game is paused and the error of the last frame.`},
		{aliases: []string{"press", "p"}, group: inputCmds, cmdFn: press, helpMsg: `Presses buttons for one input scan.

	press <buttons>

Buttons are joined by '+', for example "press start+down". Known buttons: a, b, x, y, l, r, start, select, up, down, left, right.`},
		{aliases: []string{"hold"}, group: inputCmds, cmdFn: hold, helpMsg: `Queues button states, one per input scan.

	hold <buttons>...

Each argument is the set of buttons held during one input scan, "-" holds nothing. A button only counts as pressed again after a scan where it was released:

	hold start+select - start`},
		{aliases: []string{"examinemem", "x"}, group: dataCmds, cmdFn: examineMemoryCmd, helpMsg: `Examine game memory:

	examinemem [-fmt <format>] [-count|-len <count>] [-size <size>] <address>

Format represents the data format and the value is one of this list (default hex): bin(binary), oct(octal), dec(decimal), hex(hexadecimal).
Length is the number of items (default 1).
Size represents the size of each item in bytes (default 1), one of 1, 2 or 4.

The address must lie in the code or heap region of the running game. Fewer items are shown when the region ends first.

For example:

    x -fmt hex -count 20 -size 1 0x08000000
    x -fmt dec -len 4 -size 4 0x00100000`},
		{aliases: []string{"write", "w"}, group: dataCmds, cmdFn: writeMemory, helpMsg: `Writes game memory.

	write [-size <size>] <address> <value>...

Each value is stored little endian in size bytes, one by default. Values that do not fit in the region are dropped.`},
		{aliases: []string{"title"}, group: dataCmds, cmdFn: titleCommand, helpMsg: `Prints the title id of the running game.`},
		{aliases: []string{"trampoline", "disassemble", "disass"}, group: dataCmds, cmdFn: disassCommand, helpMsg: `Disassembles the frame hook installed in the running game.

The line marked "=>" is the relocated call of the game's original routine.`},
		{aliases: []string{"plugins"}, group: pluginCmds, cmdFn: plugins, helpMsg: `Lists the plugins of the running title.

	plugins [-host]

The active plugin is marked with '*'. With -host the functions a plugin may import from the "env" module are listed instead.`},
		{aliases: []string{"overlay", "o"}, group: pluginCmds, cmdFn: overlay, helpMsg: `Prints what the last top screen frame drew.

	overlay [-ops]

Without arguments the text is printed, -ops prints every drawing operation.`},
		{aliases: []string{"source"}, cmdFn: c.sourceCommand, helpMsg: `Executes a file containing a list of pnp commands

	source <path>

If path ends with the .star extension it will be interpreted as a starlark script. See help on scripts for the available builtins.

If path is a single '-' character an interactive starlark interpreter will start instead. Type 'exit' to exit.`},
		{aliases: []string{"transcript"}, cmdFn: transcript, helpMsg: `Appends command output to a file.

	transcript [-t] [-x] <output file>
	transcript -off

Output of pnp's command is appended to the specified output file. If '-t' is specified and the output file exists it is truncated. If '-x' is specified output to stdout is suppressed instead.

Using the -off option disables the transcript.`},
		{aliases: []string{"config"}, cmdFn: configureCmd, helpMsg: `Changes configuration parameters.

	config -list

Show all configuration parameters.

	config -save

Saves the configuration file to disk, overwriting the current configuration file.

	config <parameter> <value>

Changes the value of a configuration parameter. Service parameters apply to the next console, restart does not reload them.

	config alias <command> <alias>
	config alias <alias>

Defines <alias> as an alias to <command> or removes an alias.`},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: `Exit the console.`},
	}

	sort.Sort(byFirstAlias(c.cmds))
	return c
}

// Register custom commands. Expects cf to be a func of type cmdfunc,
// returning only an error.
func (c *Commands) Register(cmdstr string, cf cmdfunc, helpMsg string) {
	for i := range c.cmds {
		if c.cmds[i].match(cmdstr) {
			c.cmds[i].cmdFn = cf
			c.cmds[i].helpMsg = helpMsg
			return
		}
	}

	c.cmds = append(c.cmds, command{aliases: []string{cmdstr}, cmdFn: cf, helpMsg: helpMsg})
	c.completions = nil
}

// Find will look up the command function for the given command input.
// If it cannot find the command it will default to noCmdAvailable().
// If the command is an empty string it will do nothing.
func (c *Commands) Find(cmdstr string) cmdfunc {
	if cmdstr == "" {
		return nullCommand
	}

	for _, v := range c.cmds {
		if v.match(cmdstr) {
			return v.cmdFn
		}
	}

	return noCmdAvailable
}

// CallWithContext takes a command and a context that command should be executed in.
func (c *Commands) CallWithContext(cmdstr string, t *Term, ctx callContext) error {
	vals := strings.SplitN(strings.TrimSpace(cmdstr), " ", 2)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	return c.Find(cmdname)(t, ctx, args)
}

// Call takes a command to execute.
func (c *Commands) Call(cmdstr string, t *Term) error {
	return c.CallWithContext(cmdstr, t, callContext{Ctx: t.context()})
}

// Merge takes aliases defined in the config struct and merges them with the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if c.cmds[i].builtinAliases != nil {
			c.cmds[i].aliases = append(c.cmds[i].aliases[:0], c.cmds[i].builtinAliases...)
		}
	}
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			if c.cmds[i].builtinAliases == nil {
				c.cmds[i].builtinAliases = make([]string, len(c.cmds[i].aliases))
				copy(c.cmds[i].builtinAliases, c.cmds[i].aliases)
			}
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
	c.completions = nil
}

// Complete returns the aliases starting with prefix, sorted.
func (c *Commands) Complete(prefix string) []string {
	if c.completions == nil {
		c.completions = trie.New()
		for _, cmd := range c.cmds {
			for _, alias := range cmd.aliases {
				c.completions.Add(alias, nil)
			}
		}
	}
	r := c.completions.PrefixSearch(strings.ToLower(prefix))
	sort.Strings(r)
	return r
}

var errNoCmd = errors.New("command not available")

func noCmdAvailable(t *Term, ctx callContext, args string) error {
	return errNoCmd
}

func nullCommand(t *Term, ctx callContext, args string) error {
	return nil
}

func (c *Commands) help(t *Term, ctx callContext, args string) error {
	if args != "" {
		for _, cmd := range c.cmds {
			for _, alias := range cmd.aliases {
				if alias == args {
					fmt.Fprintln(t.stdout, cmd.helpMsg)
					return nil
				}
			}
		}
		switch args {
		case "scripts", "starlark":
			_, err := t.starlarkEnv.Execute("<help>", "help()", "", nil)
			return err
		}
		return errNoCmd
	}

	t.stdout.page()
	fmt.Fprintln(t.stdout, "The following commands are available:")

	for _, cgd := range commandGroupDescriptions {
		fmt.Fprintf(t.stdout, "\n%s:\n", cgd.description)
		w := new(tabwriter.Writer)
		w.Init(t.stdout, 0, 8, 0, '-', 0)
		for _, cmd := range c.cmds {
			if cmd.group != cgd.group {
				continue
			}
			h := cmd.helpMsg
			if idx := strings.Index(h, "\n"); idx >= 0 {
				h = h[:idx]
			}
			if len(cmd.aliases) > 1 {
				fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
			} else {
				fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(t.stdout)
	fmt.Fprintln(t.stdout, "Type help followed by a command for full documentation.")
	return nil
}

// splitArgs splits a command line the way a shell would.
func splitArgs(args string) ([]string, error) {
	if strings.TrimSpace(args) == "" {
		return nil, nil
	}
	v, err := argv.Argv(args,
		func(s string) (string, error) {
			return "", fmt.Errorf("Backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal commandline '%s'", args)
	}
	return v[0], nil
}

func parseAddress(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return uint32(n), nil
}

func frameCommand(t *Term, ctx callContext, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	count := 1
	screen := uint32(service.PrimaryScreen)
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case "-screen":
			i++
			if i >= len(v) {
				return fmt.Errorf("expected argument after -screen")
			}
			n, err := strconv.ParseUint(v[i], 0, 32)
			if err != nil {
				return fmt.Errorf("invalid screen %q", v[i])
			}
			screen = uint32(n)
		default:
			if i != len(v)-1 {
				return fmt.Errorf("unknown option %q", v[i])
			}
			count, err = strconv.Atoi(v[i])
			if err != nil || count <= 0 {
				return fmt.Errorf("count must be a positive integer")
			}
		}
	}

	for i := 0; i < count; i++ {
		err := t.target.Frame(ctx.Ctx, screen)
		if errors.Is(err, target.ErrPaused) {
			fmt.Fprintf(t.stdout, "game paused after %d frames, press a button and run frame to resume\n", i)
			break
		}
		if err != nil {
			return err
		}
	}
	printcontext(t)
	return nil
}

func restart(t *Term, ctx callContext, args string) error {
	spec := t.target.Spec()
	if args != "" {
		n, err := strconv.ParseUint(args, 16, 64)
		if err != nil {
			return fmt.Errorf("invalid title id %q", args)
		}
		spec.Title = horizon.TitleID(n)
	}
	if err := t.target.Relaunch(ctx.Ctx, spec); err != nil {
		if errors.Is(err, target.ErrPaused) {
			return fmt.Errorf("cannot restart while a frame is pending: %w", err)
		}
		return err
	}
	fmt.Fprintf(t.stdout, "launched title %v\n", spec.Title)
	return nil
}

func statusCommand(t *Term, ctx callContext, args string) error {
	st := t.target.Status()
	w := tabwriter.NewWriter(t.stdout, 0, 8, 1, ' ', 0)
	fmt.Fprintf(w, "title\t%v\n", st.Title)
	if st.Plugin != "" {
		fmt.Fprintf(w, "plugin\t%s\n", st.Plugin)
	} else {
		fmt.Fprintf(w, "plugin\t<none>\n")
	}
	fmt.Fprintf(w, "frames\t%d\n", st.Frames)
	fmt.Fprintf(w, "paused\t%v\n", st.Paused)
	fmt.Fprintf(w, "pending\t%v\n", t.target.Pending())
	fmt.Fprintf(w, "menu\t%v\n", st.MenuOpen)
	if st.Err != nil {
		fmt.Fprintf(w, "error\t%v\n", st.Err)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if st.MenuOpen {
		for _, l := range st.Menu {
			t.Println("  menu | ", l)
		}
	}
	for _, l := range st.Output {
		t.Println("  out  | ", l)
	}
	return nil
}

func parseButtons(s string) (horizon.Buttons, error) {
	if s == "-" {
		return 0, nil
	}
	b, ok := horizon.ParseButtons(s)
	if !ok {
		return 0, fmt.Errorf("unknown buttons %q", s)
	}
	return b, nil
}

func press(t *Term, ctx callContext, args string) error {
	if args == "" {
		return errors.New("not enough arguments")
	}
	b, err := parseButtons(args)
	if err != nil {
		return err
	}
	t.target.Press(b)
	return nil
}

func hold(t *Term, ctx callContext, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	if len(v) == 0 {
		return errors.New("not enough arguments")
	}
	states := make([]horizon.Buttons, len(v))
	for i := range v {
		if states[i], err = parseButtons(v[i]); err != nil {
			return err
		}
	}
	t.target.Hold(states...)
	return nil
}

func examineMemoryCmd(t *Term, ctx callContext, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}

	var (
		address uint32
		ok      bool
	)

	// Default value
	priFmt := byte('x')
	count := 1
	size := 1
	haveAddr := false

	for i := 0; i < len(v); i++ {
		switch v[i] {
		case "-fmt":
			i++
			if i >= len(v) {
				return fmt.Errorf("expected argument after -fmt")
			}
			fmtMapToPriFmt := map[string]byte{
				"oct":         'o',
				"octal":       'o',
				"hex":         'x',
				"hexadecimal": 'x',
				"dec":         'd',
				"decimal":     'd',
				"bin":         'b',
				"binary":      'b',
			}
			priFmt, ok = fmtMapToPriFmt[v[i]]
			if !ok {
				return fmt.Errorf("%q is not a valid format", v[i])
			}
		case "-count", "-len":
			i++
			if i >= len(v) {
				return fmt.Errorf("expected argument after -count/-len")
			}
			var err error
			count, err = strconv.Atoi(v[i])
			if err != nil || count <= 0 {
				return fmt.Errorf("count/len must be a positive integer")
			}
		case "-size":
			i++
			if i >= len(v) {
				return fmt.Errorf("expected argument after -size")
			}
			var err error
			size, err = strconv.Atoi(v[i])
			if err != nil || (size != 1 && size != 2 && size != 4) {
				return fmt.Errorf("size must be 1, 2 or 4")
			}
		default:
			if i != len(v)-1 {
				return fmt.Errorf("unknown option %q", v[i])
			}
			address, err = parseAddress(v[i])
			if err != nil {
				return err
			}
			haveAddr = true
		}
	}

	if count*size > maxExamineLen {
		return fmt.Errorf("read memory range (count*size) must be less than or equal to %d bytes", maxExamineLen)
	}

	if !haveAddr {
		return fmt.Errorf("no address specified")
	}

	memArea, err := t.target.ReadMemory(address, count*size)
	if err != nil {
		return err
	}
	t.stdout.page()
	fmt.Fprint(t.stdout, prettyExamineMemory(address, memArea, priFmt, size))
	if len(memArea) < count*size {
		fmt.Fprintf(t.stdout, "region ends at %#08x\n", address+uint32(len(memArea)))
	}
	return nil
}

// prettyExamineMemory formats memArea, read at address, as rows of items
// of size bytes in the given format.
func prettyExamineMemory(address uint32, memArea []byte, format byte, size int) string {
	var (
		cols      int
		colFormat string
	)

	switch format {
	case 'b':
		cols = 4 // Avoid emitting rows that are too long when using binary format
		colFormat = fmt.Sprintf("%%0%db", size*8)
	case 'o':
		cols = 8
		colFormat = fmt.Sprintf("0%%0%do", size*3) // Always keep one leading zero for octal.
	case 'd':
		cols = 8
		colFormat = fmt.Sprintf("%%0%dd", size*3)
	case 'x':
		cols = 8
		colFormat = fmt.Sprintf("0x%%0%dx", size*2) // Always keep one leading '0x' for hex.
	default:
		return fmt.Sprintf("not supported format %q\n", string(format))
	}
	colFormat += "\t"

	l := len(memArea)
	rows := l / (cols * size)
	if l%(cols*size) != 0 {
		rows++
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 3, ' ', 0)

	for i := 0; i < rows; i++ {
		fmt.Fprintf(w, "0x%08x:\t", address)

		for j := 0; j < cols; j++ {
			offset := i*(cols*size) + j*size
			if offset+size <= len(memArea) {
				fmt.Fprintf(w, colFormat, readLittleEndian(memArea[offset:offset+size]))
			}
		}
		fmt.Fprintln(w, "")
		address += uint32(cols * size)
	}
	w.Flush()
	return b.String()
}

func readLittleEndian(b []byte) uint32 {
	switch len(b) {
	case 1:
		return uint32(b[0])
	case 2:
		return uint32(binary.LittleEndian.Uint16(b))
	}
	return binary.LittleEndian.Uint32(b)
}

func writeMemory(t *Term, ctx callContext, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	size := 1
	if len(v) > 0 && v[0] == "-size" {
		if len(v) < 2 {
			return fmt.Errorf("expected argument after -size")
		}
		size, err = strconv.Atoi(v[1])
		if err != nil || (size != 1 && size != 2 && size != 4) {
			return fmt.Errorf("size must be 1, 2 or 4")
		}
		v = v[2:]
	}
	if len(v) < 2 {
		return errors.New("not enough arguments")
	}
	address, err := parseAddress(v[0])
	if err != nil {
		return err
	}
	data := make([]byte, 0, size*(len(v)-1))
	for _, s := range v[1:] {
		n, err := strconv.ParseUint(s, 0, size*8)
		if err != nil {
			return fmt.Errorf("invalid %d byte value %q", size, s)
		}
		var item [4]byte
		binary.LittleEndian.PutUint32(item[:], uint32(n))
		data = append(data, item[:size]...)
	}
	n, err := t.target.WriteMemory(address, data)
	if err != nil {
		return err
	}
	if n < len(data) {
		fmt.Fprintf(t.stdout, "wrote %d of %d bytes, region ends at %#08x\n", n, len(data), address+uint32(n))
	}
	return nil
}

func titleCommand(t *Term, ctx callContext, args string) error {
	title, err := t.target.Title()
	if err != nil {
		return err
	}
	fmt.Fprintln(t.stdout, title)
	return nil
}

func disassCommand(t *Term, ctx callContext, args string) error {
	if args != "" {
		return errors.New("too many arguments")
	}
	p, err := t.target.Trampoline()
	if err != nil {
		return err
	}
	disasmPrint(p, t.stdout, true)
	return nil
}

func plugins(t *Term, ctx callContext, args string) error {
	switch args {
	case "":
	case "-host":
		for _, name := range sandbox.HostFunctions() {
			fmt.Fprintln(t.stdout, name)
		}
		return nil
	default:
		return fmt.Errorf("unknown option %q", args)
	}
	cat, err := t.target.Plugins()
	if err != nil {
		return err
	}
	if len(cat) == 0 {
		fmt.Fprintln(t.stdout, "no plugins")
		return nil
	}
	active := t.target.Status().Plugin
	for _, p := range cat {
		mark := " "
		if p == active {
			mark = "*"
		}
		fmt.Fprintf(t.stdout, "%s %s\n", mark, p)
	}
	return nil
}

func overlay(t *Term, ctx callContext, args string) error {
	switch args {
	case "":
		for _, l := range t.target.Overlay() {
			fmt.Fprintln(t.stdout, l)
		}
	case "-ops":
		t.stdout.page()
		for _, op := range t.target.Ops() {
			fmt.Fprintln(t.stdout, op)
		}
	default:
		return fmt.Errorf("unknown option %q", args)
	}
	return nil
}

func (c *Commands) sourceCommand(t *Term, ctx callContext, args string) error {
	if len(args) == 0 {
		return fmt.Errorf("wrong number of arguments: source <filename>")
	}

	if filepath.Ext(args) == ".star" {
		_, err := t.starlarkEnv.Execute(args, nil, "main", nil)
		return err
	}

	if args == "-" {
		return t.starlarkEnv.REPL()
	}

	return c.executeFile(t, args)
}

func (c *Commands) executeFile(t *Term, name string) error {
	fh, err := os.Open(name)
	if err != nil {
		return err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	lineno := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineno++

		if line == "" || line[0] == '#' {
			continue
		}

		if err := c.Call(line, t); err != nil {
			if _, isExitRequest := err.(ExitRequestError); isExitRequest {
				return err
			}
			fmt.Fprintf(t.stdout, "%s:%d: %v\n", name, lineno, err)
		}
	}

	return scanner.Err()
}

func transcript(t *Term, ctx callContext, args string) error {
	truncate := false
	fileOnly := false
	disable := false
	path := ""
	for _, arg := range strings.Fields(args) {
		switch arg {
		case "-x":
			fileOnly = true
		case "-t":
			truncate = true
		case "-off":
			disable = true
		default:
			if path != "" || strings.HasPrefix(arg, "-") {
				return fmt.Errorf("unrecognized option %q", arg)
			}
			path = arg
		}
	}

	if disable {
		if path != "" {
			return errors.New("-off option specified with an output path")
		}
		return t.stdout.closeTranscript()
	}

	if path == "" {
		return errors.New("no output path specified")
	}

	flags := os.O_APPEND | os.O_WRONLY | os.O_CREATE
	if truncate {
		flags |= os.O_TRUNC
	}
	fh, err := os.OpenFile(path, flags, 0660)
	if err != nil {
		return err
	}

	if err := t.stdout.transcribe(fh, fileOnly); err != nil {
		fh.Close()
		return err
	}
	return nil
}

// ExitRequestError is returned when the user
// exits the console.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

func exitCommand(t *Term, ctx callContext, args string) error {
	if args != "" {
		return errors.New("too many arguments")
	}
	return ExitRequestError{}
}

// printcontext prints the state of the game after frames were presented.
func printcontext(t *Term) {
	st := t.target.Status()
	title := st.Title
	if title == 0 {
		title, _ = t.target.Title()
	}
	fmt.Fprintf(t.stdout, "> frame %d title %v", st.Frames, title)
	if st.Plugin != "" {
		fmt.Fprintf(t.stdout, " plugin %s", st.Plugin)
	}
	if st.Paused {
		fmt.Fprint(t.stdout, " (paused)")
	}
	fmt.Fprintln(t.stdout)
	if st.Err != nil {
		fmt.Fprintf(t.stdout, "plugin error: %v\n", st.Err)
	}
	for _, l := range t.target.Overlay() {
		t.Println("  | ", l)
	}
}
