package cmds

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/pnp3ds/pnp/pkg/config"
	"github.com/pnp3ds/pnp/pkg/horizon"
	"github.com/pnp3ds/pnp/pkg/sandbox/wasmtest"
)

// withSD points the command line at a fresh SD card directory holding
// files and at a configuration file in the same temporary directory.
func withSD(t *testing.T, files map[string][]byte) {
	t.Helper()
	dir := t.TempDir()
	sd := filepath.Join(dir, "sd")
	for name, data := range files {
		p := filepath.Join(sd, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, data, 0600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(sd, 0755); err != nil {
		t.Fatal(err)
	}
	cfg := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(cfg, []byte("menu-max-len: 30\npause-interval: 1ms\n"), 0600); err != nil {
		t.Fatal(err)
	}

	log, logOutput, logDest = false, "", ""
	configFile = cfg
	sdDir = sd
	titleID = "0004000000030800"
	codeFile = ""
	codeSize = 0x4000
	heapSize = 0x2000
	presentOffset = 0x800
	extended = false
	launchTimeout = 30 * time.Second
	held = nil
}

func TestRunCmd(t *testing.T) {
	withSD(t, map[string][]byte{"pnp/a.wasm": wasmtest.Printer("A")})
	var out bytes.Buffer
	if status := runCmd(&out, []string{"2"}); status != 0 {
		t.Fatalf("exit status %d, output %q", status, out.String())
	}
	s := out.String()
	for _, want := range []string{"title  0004000000030800\n", "plugin sd:/pnp/a.wasm\n", "frames 2\n", "  | A\n"} {
		if !strings.Contains(s, want) {
			t.Fatalf("output %q does not contain %q", s, want)
		}
	}
}

func TestRunCmdNoPlugins(t *testing.T) {
	withSD(t, nil)
	var out bytes.Buffer
	if status := runCmd(&out, nil); status != 0 {
		t.Fatalf("exit status %d", status)
	}
	if !strings.Contains(out.String(), "plugin <none>\n") {
		t.Fatalf("output %q", out.String())
	}
}

func TestRunCmdBadArgs(t *testing.T) {
	withSD(t, nil)
	var out bytes.Buffer
	if status := runCmd(&out, []string{"many"}); status != 1 {
		t.Fatalf("exit status %d", status)
	}
	titleID = "zelda"
	if status := runCmd(&out, nil); status != 1 {
		t.Fatalf("exit status %d", status)
	}
}

func TestHookCmd(t *testing.T) {
	withSD(t, nil)
	var out bytes.Buffer
	if status := hookCmd(&out); status != 0 {
		t.Fatalf("exit status %d", status)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if !strings.HasPrefix(lines[0], "trampoline at 0x00100800 (code+0x800)") {
		t.Fatalf("header %q", lines[0])
	}
	marked := 0
	for _, l := range lines[1:] {
		if strings.HasPrefix(l, "=>") {
			marked++
		}
	}
	if marked != 1 {
		t.Fatalf("%d branches marked in %q", marked, out.String())
	}
}

func TestPluginsCmd(t *testing.T) {
	withSD(t, map[string][]byte{
		"pnp/a.wasm":                  wasmtest.Printer("A"),
		"pnp/0004000000030800/b.wasm": wasmtest.Printer("B"),
		"pnp/notes.txt":               []byte("no"),
	})
	var out bytes.Buffer
	if status := pluginsCmd(&out); status != 0 {
		t.Fatalf("exit status %d", status)
	}
	want := "* sd:/pnp/0004000000030800/b.wasm\n  sd:/pnp/a.wasm\n"
	if out.String() != want {
		t.Fatalf("got %q expected %q", out.String(), want)
	}
}

func TestHeldFlag(t *testing.T) {
	var got heldFlag
	if err := got.Set("start+down,-"); err != nil {
		t.Fatal(err)
	}
	if err := got.Set("a"); err != nil {
		t.Fatal(err)
	}
	want := []horizon.Buttons{horizon.ButtonStart | horizon.ButtonDDown, 0, horizon.ButtonA}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("state %d: got %v expected %v", i, got[i], want[i])
		}
	}
	if s := got.String(); s != "start+down,-,a" {
		t.Fatalf("got %q", s)
	}
	if err := got.Set("start+nothing"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestParseTitle(t *testing.T) {
	for _, s := range []string{"0004000000030800", "0x0004000000030800", "4000000030800"} {
		id, err := parseTitle(s)
		if err != nil {
			t.Fatalf("%s: %v", s, err)
		}
		if id != 0x0004000000030800 {
			t.Fatalf("%s: got %v", s, id)
		}
	}
	if _, err := parseTitle("title"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestServiceConfig(t *testing.T) {
	c := config.Default()
	c.MenuMaxLen = 1000
	scfg, err := serviceConfig(c)
	if err != nil {
		t.Fatal(err)
	}
	if scfg.MenuMaxLen != 0xff {
		t.Fatalf("menu max len %d", scfg.MenuMaxLen)
	}
	if !scfg.AllowPluginSwitching {
		t.Fatal("plugin switching disabled by default")
	}
	if !scfg.ExtendedTitles.Contains(0x0004000000164800) {
		t.Fatalf("extended titles %v", scfg.ExtendedTitles)
	}

	c.ExtendedMemoryTitles = []string{"nope"}
	if _, err := serviceConfig(c); err == nil {
		t.Fatal("expected an error")
	}
}

func TestCommandsDocumented(t *testing.T) {
	var check func(cmd *cobra.Command)
	check = func(cmd *cobra.Command) {
		if cmd.Short == "" {
			t.Errorf("command %q has no description", cmd.CommandPath())
		}
		for _, sub := range cmd.Commands() {
			check(sub)
		}
	}
	check(New(true))
}
