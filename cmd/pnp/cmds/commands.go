package cmds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pnp3ds/pnp/pkg/config"
	"github.com/pnp3ds/pnp/pkg/hook"
	"github.com/pnp3ds/pnp/pkg/horizon"
	"github.com/pnp3ds/pnp/pkg/horizon/sim"
	"github.com/pnp3ds/pnp/pkg/logflags"
	"github.com/pnp3ds/pnp/pkg/memory"
	"github.com/pnp3ds/pnp/pkg/sandbox"
	"github.com/pnp3ds/pnp/pkg/target"
	"github.com/pnp3ds/pnp/pkg/terminal"
	"github.com/pnp3ds/pnp/pkg/version"
	"github.com/pnp3ds/pnp/service"
	"github.com/spf13/cobra"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// initFile is the path to initialization file.
	initFile string
	// configFile overrides the configuration file in the config directory.
	configFile string

	// sdDir is the directory that stands in for the SD card.
	sdDir string
	// titleID is the hex title id of the simulated game.
	titleID string
	// codeFile is a dump of the game's code segment.
	codeFile string
	// codeSize is the size of the generated code segment when there is no dump.
	codeSize int
	// heapSize is the size of the game's heap.
	heapSize int
	// presentOffset is the offset of the presentation routine in the code segment.
	presentOffset int
	// extended places the heap at the extended memory address.
	extended bool

	// launchTimeout bounds the launch of the simulated console.
	launchTimeout time.Duration

	// held is the controller state sequence queued by the run command.
	held heldFlag

	// verbose prints build details with the version.
	verbose bool

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const pnpCommandLongDesc = `pnp runs WebAssembly plugins inside 3DS games.

The pnp service hooks the game's frame presentation routine. Every presented
frame it polls the controller, runs the active plugin in a sandbox and draws
the plugin's text on top of the game. Start+Select pauses the game and
Start+Down opens the plugin menu.

This tool runs the service against a simulated console: a directory stands in
for the SD card and the game is either a code dump or a generated stub
containing the presentation routine.

Plugins are looked up under <sd>/pnp/<title id>/*.wasm, then <sd>/pnp/*.wasm.`

// New returns an initialized command tree.
func New(docCall bool) *cobra.Command {
	// Config setup and load.
	conf = config.LoadConfig()

	// Main pnp root command.
	rootCommand = &cobra.Command{
		Use:   "pnp",
		Short: "pnp runs WebAssembly plugins inside 3DS games.",
		Long:  pnpCommandLongDesc,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable service logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'pnp help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'pnp help log').")
	rootCommand.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file, replaces config.yml in the configuration directory.")

	rootCommand.PersistentFlags().StringVar(&sdDir, "sd", ".", "Directory used as the SD card.")
	rootCommand.PersistentFlags().StringVar(&titleID, "title", "0004000000030800", "Title id of the simulated game, in hex.")
	rootCommand.PersistentFlags().StringVar(&codeFile, "code", "", "Code segment dump of the game. A stub game is generated when empty.")
	rootCommand.PersistentFlags().IntVar(&codeSize, "code-size", 0x4000, "Size of the generated code segment.")
	rootCommand.PersistentFlags().IntVar(&heapSize, "heap-size", 0x10000, "Size of the game's heap.")
	rootCommand.PersistentFlags().IntVar(&presentOffset, "present-offset", 0x800, "Offset of the presentation routine in the code segment.")
	rootCommand.PersistentFlags().BoolVar(&extended, "extended", false, "Place the heap at the extended memory address.")
	rootCommand.PersistentFlags().DurationVar(&launchTimeout, "launch-timeout", 30*time.Second, "Time to wait for the service to hook the game.")

	// 'console' subcommand.
	consoleCommand := &cobra.Command{
		Use:   "console",
		Short: "Launches the game and starts an interactive console.",
		Long: `Launches the game and starts an interactive console.

The console presents frames on demand, feeds controller input, reads and writes
game memory and runs starlark scripts. Type 'help' in the console for a list of
commands.`,
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(consoleCmd())
		},
	}
	consoleCommand.Flags().StringVar(&initFile, "init", "", "Init file, executed by the console.")
	rootCommand.AddCommand(consoleCommand)

	// 'run' subcommand.
	runCommand := &cobra.Command{
		Use:   "run [frames]",
		Short: "Launches the game and presents frames.",
		Long: `Launches the game and presents frames.

Presents the given number of frames, one by default, then prints the overlay
drawn by the plugin and the service status. Use --hold to queue controller
states, one per frame; "-" stands for no buttons:

	pnp run 3 --hold start+down,-,a
`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runCmd(os.Stdout, args))
		},
	}
	runCommand.Flags().Var(&held, "hold", "Controller states to queue, one per frame.")
	rootCommand.AddCommand(runCommand)

	// 'hook' subcommand.
	hookCommand := &cobra.Command{
		Use:   "hook",
		Short: "Prints the trampoline installed in the game.",
		Long: `Prints the trampoline installed in the game.

Launches the game, waits for the service to hook its presentation routine and
disassembles the installed trampoline.`,
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(hookCmd(os.Stdout))
		},
	}
	rootCommand.AddCommand(hookCommand)

	// 'plugins' subcommand.
	pluginsCommand := &cobra.Command{
		Use:   "plugins",
		Short: "Lists the plugins available to the game.",
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(pluginsCmd(os.Stdout))
		},
	}
	rootCommand.AddCommand(pluginsCommand)

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pnp\n%s\n", version.PnpVersion)
			if verbose {
				fmt.Printf("Build Details: %s\n", version.BuildInfo())
			}
		},
	}
	versionCommand.Flags().BoolVarP(&verbose, "verbose", "v", false, "print build details")
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	hook		Log trampoline installation
	memory		Log game memory resolution
	sandbox		Log plugin instantiation and traps
	dispatch	Log hook requests
	menu		Log plugin menu navigation
	service		Log service lifecycle and launches

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.

`,
	})

	rootCommand.AddCommand(&cobra.Command{
		Use:   "host",
		Short: "Lists the functions plugins can import.",
		Long: `Lists the functions plugins can import.

Plugins import these functions from the "env" module and export run_frame.`,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range sandbox.HostFunctions() {
				fmt.Println(name)
			}
		},
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return conf, nil
	}
	return config.LoadConfigFrom(configFile)
}

// serviceConfig converts the user configuration into the configuration
// of the service.
func serviceConfig(c *config.Config) (service.Config, error) {
	ids, err := c.ExtendedTitleIDs()
	if err != nil {
		return service.Config{}, err
	}
	ext := make(memory.ExtendedTitles, len(ids))
	for i, id := range ids {
		ext[i] = horizon.TitleID(id)
	}
	menuMaxLen := c.MenuMaxLen
	if menuMaxLen > 0xff {
		menuMaxLen = 0xff
	}
	return service.Config{
		SDRoot:               c.SDRoot,
		PluginDir:            c.PluginDir,
		PluginExtension:      c.PluginExtension,
		ExtendedTitles:       ext,
		PauseInterval:        c.PauseInterval,
		TickTimeout:          c.TickTimeout,
		ModuleCacheSize:      c.ModuleCacheSize,
		MenuMaxLen:           uint8(menuMaxLen),
		AllowPluginSwitching: c.PluginSwitching(),
		Version:              version.PnpVersion.Short(),
	}, nil
}

func parseTitle(s string) (horizon.TitleID, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid title id %q", s)
	}
	return horizon.TitleID(id), nil
}

// gameSpec builds the game to launch from the command line. The returned
// function releases the code dump.
func gameSpec() (sim.GameSpec, func(), error) {
	title, err := parseTitle(titleID)
	if err != nil {
		return sim.GameSpec{}, nil, err
	}
	if heapSize < 0 || heapSize > 0x10000000 {
		return sim.GameSpec{}, nil, fmt.Errorf("invalid heap size %#x", heapSize)
	}
	spec := sim.GameSpec{
		Title:         title,
		HeapSize:      uint32(heapSize),
		Extended:      extended,
		PresentOffset: presentOffset,
	}
	if codeFile == "" {
		if codeSize <= 0 {
			return sim.GameSpec{}, nil, fmt.Errorf("invalid code size %#x", codeSize)
		}
		spec.Code = sim.NewCode(codeSize, presentOffset)
		return spec, func() {}, nil
	}
	d, err := sim.LoadDump(codeFile)
	if err != nil {
		return sim.GameSpec{}, nil, fmt.Errorf("could not load code dump: %v", err)
	}
	spec.Code = d.Bytes()
	return spec, func() { d.Close() }, nil
}

// launch sets up logging and starts the simulated console with the
// game. The returned function shuts everything down.
func launch() (*target.Target, *config.Config, func(), error) {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		return nil, nil, nil, err
	}
	c, err := loadConfig()
	if err != nil {
		logflags.Close()
		return nil, nil, nil, err
	}
	scfg, err := serviceConfig(c)
	if err != nil {
		logflags.Close()
		return nil, nil, nil, err
	}
	spec, release, err := gameSpec()
	if err != nil {
		logflags.Close()
		return nil, nil, nil, err
	}
	// The heap of an extended memory title always lives at the extended
	// address, whichever way it was asked for.
	if spec.Extended && !scfg.ExtendedTitles.Contains(spec.Title) {
		scfg.ExtendedTitles = append(scfg.ExtendedTitles, spec.Title)
	}
	spec.Extended = scfg.ExtendedTitles.Contains(spec.Title)

	ctx, cancel := context.WithTimeout(context.Background(), launchTimeout)
	defer cancel()
	tgt, err := target.Launch(ctx, target.Config{
		Service: scfg,
		SD:      os.DirFS(sdDir),
		Game:    spec,
	})
	if err != nil {
		release()
		logflags.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, nil, fmt.Errorf("the service did not hook the game within %v", launchTimeout)
		}
		return nil, nil, nil, err
	}
	done := func() {
		ctx, cancel := context.WithTimeout(context.Background(), launchTimeout)
		defer cancel()
		if err := tgt.Close(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "error stopping the service: %v\n", err)
		}
		release()
		logflags.Close()
	}
	return tgt, c, done, nil
}

func consoleCmd() int {
	tgt, c, done, err := launch()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer done()

	term := terminal.New(tgt, c)
	term.InitFile = initFile
	status, err := term.Run()
	if err != nil {
		fmt.Println(err)
	}
	return status
}

func runCmd(out io.Writer, args []string) int {
	frames := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			fmt.Fprintf(os.Stderr, "invalid frame count %q\n", args[0])
			return 1
		}
		frames = n
	}
	tgt, _, done, err := launch()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer done()

	tgt.Hold(held...)
	status := 0
	for i := 0; i < frames; i++ {
		if err := tgt.Frame(context.Background(), 0); err != nil {
			if errors.Is(err, target.ErrPaused) {
				fmt.Fprintf(out, "game paused after %d frames\n", i)
				break
			}
			fmt.Fprintf(os.Stderr, "frame %d: %v\n", i, err)
			status = 1
			break
		}
	}
	printStatus(out, tgt.Status())
	return status
}

func printStatus(out io.Writer, st service.Status) {
	w := tabwriter.NewWriter(out, 0, 8, 1, ' ', 0)
	fmt.Fprintf(w, "title\t%v\n", st.Title)
	plugin := st.Plugin
	if plugin == "" {
		plugin = "<none>"
	}
	fmt.Fprintf(w, "plugin\t%s\n", plugin)
	fmt.Fprintf(w, "frames\t%d\n", st.Frames)
	fmt.Fprintf(w, "paused\t%v\n", st.Paused)
	if st.Err != nil {
		fmt.Fprintf(w, "error\t%v\n", st.Err)
	}
	w.Flush()
	if st.MenuOpen {
		for _, l := range st.Menu {
			fmt.Fprintf(out, "  # %s\n", l)
		}
	}
	for _, l := range st.Output {
		fmt.Fprintf(out, "  | %s\n", l)
	}
}

func hookCmd(out io.Writer) int {
	tgt, _, done, err := launch()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer done()

	p, err := tgt.Trampoline()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	fmt.Fprintf(out, "trampoline at %#08x (code+%#x), session %#x\n", p.Addr, p.Offset, uint32(p.Session))
	w := tabwriter.NewWriter(out, 1, 8, 1, '\t', 0)
	for _, inst := range p.Disassemble() {
		mark := ""
		if inst.Addr == p.Addr+hook.BranchOffset {
			mark = "=>"
		}
		fmt.Fprintf(w, "%s\t%#08x\t%08x\t%s\n", mark, inst.Addr, inst.Word, inst.Text)
	}
	w.Flush()
	return 0
}

func pluginsCmd(out io.Writer) int {
	tgt, _, done, err := launch()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer done()

	cat, err := tgt.Plugins()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	if len(cat) == 0 {
		fmt.Fprintln(out, "no plugins")
		return 0
	}
	active := tgt.Status().Plugin
	for _, p := range cat {
		mark := " "
		if p == active {
			mark = "*"
		}
		fmt.Fprintf(out, "%s %s\n", mark, p)
	}
	return 0
}
