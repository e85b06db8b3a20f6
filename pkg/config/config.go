package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"os/user"
	"path"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configDir  string = ".pnp"
	configFile string = "config.yml"
)

const (
	DefaultSDRoot         = "sd:"
	DefaultPluginDir      = "pnp"
	DefaultPluginExt      = ".wasm"
	DefaultPauseInterval  = 50 * time.Millisecond
	DefaultTickTimeout    = 0
	DefaultMenuMaxLen     = 47
	DefaultModuleCacheLen = 8
)

// DefaultExtendedMemoryTitles lists the titles known to run in extended
// memory mode. Their heap lives at a different base address.
var DefaultExtendedMemoryTitles = []string{
	"0004000000164800",
	"0004000000175E00",
	"00040000001B5000",
	"00040000001B5100",
}

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Commands aliases for the interactive console.
	Aliases map[string][]string `yaml:"aliases"`

	// SDRoot is the root of the SD card file system, plugins are
	// looked up in SDRoot/PluginDir.
	SDRoot string `yaml:"sd-root"`
	// PluginDir is the vendor directory that holds global plugins and
	// the per title subdirectories.
	PluginDir string `yaml:"plugin-dir"`
	// PluginExtension is the file extension of plugin modules.
	PluginExtension string `yaml:"plugin-extension"`

	// ExtendedMemoryTitles is the list of title ids, as 16 hex digits,
	// that run in extended memory mode.
	ExtendedMemoryTitles []string `yaml:"extended-memory-titles"`

	// PauseInterval is how often input is sampled while a game is paused.
	PauseInterval time.Duration `yaml:"pause-interval"`
	// TickTimeout bounds a single plugin frame callback. Zero disables it.
	TickTimeout time.Duration `yaml:"tick-timeout"`

	// MenuMaxLen is the maximum line length of the plugin menu.
	MenuMaxLen int `yaml:"menu-max-len"`
	// AllowPluginSwitching enables the Start+Down plugin menu.
	AllowPluginSwitching *bool `yaml:"allow-plugin-switching,omitempty"`
	// ModuleCacheSize is the number of compiled plugins kept around for
	// fast switching.
	ModuleCacheSize int `yaml:"module-cache-size"`
}

// Default returns a configuration with every option set to its default.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.SDRoot == "" {
		c.SDRoot = DefaultSDRoot
	}
	if c.PluginDir == "" {
		c.PluginDir = DefaultPluginDir
	}
	if c.PluginExtension == "" {
		c.PluginExtension = DefaultPluginExt
	}
	if c.ExtendedMemoryTitles == nil {
		c.ExtendedMemoryTitles = append([]string(nil), DefaultExtendedMemoryTitles...)
	}
	if c.PauseInterval <= 0 {
		c.PauseInterval = DefaultPauseInterval
	}
	if c.TickTimeout < 0 {
		c.TickTimeout = DefaultTickTimeout
	}
	if c.MenuMaxLen <= 0 {
		c.MenuMaxLen = DefaultMenuMaxLen
	}
	if c.AllowPluginSwitching == nil {
		allow := true
		c.AllowPluginSwitching = &allow
	}
	if c.ModuleCacheSize <= 0 {
		c.ModuleCacheSize = DefaultModuleCacheLen
	}
}

// PluginSwitching reports whether the plugin menu may be opened.
func (c *Config) PluginSwitching() bool {
	return c.AllowPluginSwitching == nil || *c.AllowPluginSwitching
}

// ExtendedTitleIDs parses ExtendedMemoryTitles.
func (c *Config) ExtendedTitleIDs() ([]uint64, error) {
	r := make([]uint64, 0, len(c.ExtendedMemoryTitles))
	for _, s := range c.ExtendedMemoryTitles {
		id, err := strconv.ParseUint(s, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid title id %q in extended-memory-titles: %v", s, err)
		}
		r = append(r, id)
	}
	return r, nil
}

// Parse decodes a configuration file and fills in defaults for missing
// options.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if _, err := c.ExtendedTitleIDs(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadConfigFrom reads the configuration at path.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// LoadConfig attempts to populate a Config object from the config.yml file.
func LoadConfig() *Config {
	err := createConfigPath()
	if err != nil {
		fmt.Printf("Could not create config directory: %v.", err)
		return Default()
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		fmt.Printf("Unable to get config file path: %v.", err)
		return Default()
	}

	f, err := os.Open(fullConfigFile)
	if err != nil {
		f, err = createDefaultConfig(fullConfigFile)
		if err != nil {
			fmt.Printf("Error creating default config file: %v", err)
			return Default()
		}
	}
	defer func() {
		err := f.Close()
		if err != nil {
			fmt.Printf("Closing config file failed: %v.", err)
		}
	}()

	data, err := ioutil.ReadAll(f)
	if err != nil {
		fmt.Printf("Unable to read config data: %v.", err)
		return Default()
	}

	c, err := Parse(data)
	if err != nil {
		fmt.Printf("Unable to decode config file: %v.", err)
		return Default()
	}

	return c
}

// SaveConfig will marshal and save the config struct
// to disk.
func SaveConfig(conf *Config) error {
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	f, err := os.Create(fullConfigFile)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(out)
	return err
}

func createDefaultConfig(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create config file: %v", err)
	}
	err = writeDefaultConfig(f)
	if err != nil {
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	return f, nil
}

func writeDefaultConfig(f *os.File) error {
	_, err := f.WriteString(
		`# Configuration file for pnp.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Root of the SD card and the directory holding plugins. Plugins for a
# specific title go in <sd-root>/<plugin-dir>/<16 hex digit title id>.
# sd-root: "sd:"
# plugin-dir: pnp
# plugin-extension: .wasm

# Titles that run in extended memory mode.
# extended-memory-titles: ["0004000000164800", "0004000000175E00", "00040000001B5000", "00040000001B5100"]

# How often input is polled while the game is paused.
# pause-interval: 50ms

# Maximum time a plugin may spend in run_frame. 0 disables the limit.
# tick-timeout: 0s

# Maximum line length of the plugin menu.
# menu-max-len: 47

# Uncomment to disable the Start+Down plugin menu.
# allow-plugin-switching: false

# Number of compiled plugins kept in memory.
# module-cache-size: 8

# Provided aliases will be added to the default aliases for a given console command.
aliases:
  # command: ["alias1", "alias2"]
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return path.Join(userHomeDir, configDir, file), nil
}
