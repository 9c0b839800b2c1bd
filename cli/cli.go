package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Mode is the single task an invocation performs.
type Mode int

const (
	ModeApply Mode = iota
	ModePrompt
	ModeAsk
	ModeServe
	ModeUndo
	ModeRedo
	ModeDiffFix
	ModeFormat
	ModeDebug
	ModeStopDebug
	ModeRun
	ModeHover
)

var modeFlags = map[Mode]string{
	ModePrompt:    "prompt",
	ModeAsk:       "ask",
	ModeServe:     "serve",
	ModeUndo:      "undo",
	ModeRedo:      "redo",
	ModeDiffFix:   "output-diff-fix",
	ModeFormat:    "format",
	ModeDebug:     "debug",
	ModeStopDebug: "stop-debug",
	ModeRun:       "run",
	ModeHover:     "hover",
}

func (m Mode) String() string {
	if name, ok := modeFlags[m]; ok {
		return name
	}
	return "apply"
}

var ErrExclusiveModes = errors.New("mutually exclusive modes")

// Settings are the values that may also come from .qcode.yaml or QCODE_*
// environment variables.
type Settings struct {
	Buffer           bool     `mapstructure:"buffer"`
	Overwrite        bool     `mapstructure:"overwrite"`
	VerifyDiffs      bool     `mapstructure:"verify_diffs"`
	Extensions       []string `mapstructure:"extension"`
	LookupDirs       []string `mapstructure:"lookup_dir"`
	Language         string   `mapstructure:"language"`
	NoAnimation      bool     `mapstructure:"no_animation"`
	Model            string   `mapstructure:"model"`
	BaseURL          string   `mapstructure:"base_url"`
	APIKey           string   `mapstructure:"api_key"`
	Temperature      float64  `mapstructure:"temperature"`
	MaxContextTokens int      `mapstructure:"max_context_tokens"`
	Listen           string   `mapstructure:"listen"`
	LogFile          string   `mapstructure:"log_file"`
	LogLevel         string   `mapstructure:"log_level"`
}

// Config holds all the command-line flag values.
type Config struct {
	Settings

	Mode        Mode
	Prompt      string
	FormatPath  string
	DebugFolder string
	DebugType   string
	DebugName   string
	Command     string
	HoverPath   string
	HoverLine   int
	HoverColumn int
	ConfigFile  string
	NvimAddr    string
}

// settingFlags maps viper keys to the flags that override them.
var settingFlags = map[string]string{
	"buffer":             "buffer",
	"overwrite":          "overwrite",
	"verify_diffs":       "verify-diffs",
	"extension":          "extension",
	"lookup_dir":         "lookup-dir",
	"language":           "language",
	"no_animation":       "no-animation",
	"model":              "model",
	"base_url":           "base-url",
	"api_key":            "api-key",
	"temperature":        "temperature",
	"max_context_tokens": "max-context-tokens",
	"listen":             "listen",
	"log_file":           "log-file",
	"log_level":          "log-level",
}

func newFlagSet(out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("qcode", pflag.ContinueOnError)
	fs.SetOutput(out)

	// Settings
	fs.BoolP("buffer", "b", false, "Update buffers in Neovim without saving them to disk (changes are saved by default).")
	fs.Bool("overwrite", false, "Allow create blocks to replace existing files.")
	fs.Bool("verify-diffs", true, "Dry-run model diffs and apply those that match; false rejects every unvalidated diff.")
	fs.StringSliceP("extension", "e", []string{}, "Filter by extension. Use 'diff' to process only diff blocks (e.g., 'py', 'js', 'diff').")
	fs.StringSliceP("lookup-dir", "l", []string{}, "Change directory to look for files (default: current directory).")
	fs.String("language", "", "Project language when it cannot be detected (python, go, javascript, typescript, rust).")
	fs.Bool("no-animation", false, "Disable loading spinner and progress updates.")
	fs.String("model", "", "Model name for --ask and the chat panel.")
	fs.String("base-url", "", "OpenAI-compatible API base URL.")
	fs.String("api-key", "", "API key (default: $OPENAI_API_KEY).")
	fs.Float64("temperature", 0, "Sampling temperature.")
	fs.Int("max-context-tokens", 0, "Token budget for editor context in prompts.")
	fs.String("listen", "127.0.0.1:0", "Address the chat panel listens on.")
	fs.String("log-file", "", "Log file of the chat panel server.")
	fs.String("log-level", "info", "Log level of the chat panel server.")

	// Modes
	fs.String("prompt", "", "Print the prompt built for this request from the current editor state.")
	fs.String("ask", "", "Send a request to the model and apply its answer.")
	fs.Bool("serve", false, "Serve the chat panel.")
	fs.BoolP("undo", "u", false, "Undo the last operation.")
	fs.BoolP("redo", "r", false, "Redo the last undone operation.")
	fs.BoolP("output-diff-fix", "o", false, "Print the diff that corrected start and count.")
	fs.String("format", "", "Format a file with the editor's formatter.")
	fs.String("debug", "", "Start a debug session in the given folder.")
	fs.Bool("stop-debug", false, "Stop the active debug session.")
	fs.String("run", "", "Run a command in a new editor terminal.")
	fs.String("hover", "", "Print hover information at path:line:column.")

	// Mode arguments
	fs.String("debug-type", "", "Debug adapter type (default: the project language).")
	fs.String("debug-name", "qcode", "Debug session name.")
	fs.String("nvim", "", "Neovim server address (default: $NVIM).")
	fs.String("config", "", "Config file (default: .qcode.yaml in the working directory or home).")

	return fs
}

// ParseFlags defines and parses command-line flags using pflag.
func ParseFlags() (*Config, error) {
	return Parse(os.Args[1:], os.Stderr)
}

// Parse parses args and merges them over the config file and environment.
func Parse(args []string, out io.Writer) (*Config, error) {
	fs := newFlagSet(out)
	fs.Usage = func() {
		fmt.Fprintln(out, "Usage: qcode [flags]")
		fmt.Fprintln(out, "\nParse content from stdin (pipe) or clipboard to update files in Neovim.")
		fmt.Fprintln(out, "\nExample: pbpaste | qcode -e py")
		fmt.Fprintln(out, "\nFlags:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	cfgFile, _ := fs.GetString("config")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".qcode")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}
	v.SetEnvPrefix("QCODE")
	v.AutomaticEnv()
	for key, flag := range settingFlags {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("binding flag %s: %w", flag, err)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{ConfigFile: v.ConfigFileUsed()}
	if err := v.Unmarshal(&cfg.Settings); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	// Entries may be written as "py, go".
	cfg.Extensions = splitList(cfg.Extensions)
	cfg.LookupDirs = splitList(cfg.LookupDirs)

	cfg.Prompt, _ = fs.GetString("prompt")
	if ask, _ := fs.GetString("ask"); ask != "" {
		cfg.Prompt = ask
	}
	cfg.FormatPath, _ = fs.GetString("format")
	cfg.DebugFolder, _ = fs.GetString("debug")
	cfg.DebugType, _ = fs.GetString("debug-type")
	cfg.DebugName, _ = fs.GetString("debug-name")
	cfg.Command, _ = fs.GetString("run")
	cfg.NvimAddr, _ = fs.GetString("nvim")

	var modes []Mode
	for mode, flag := range modeFlags {
		if fs.Changed(flag) {
			modes = append(modes, mode)
		}
	}
	switch len(modes) {
	case 0:
		cfg.Mode = ModeApply
	case 1:
		cfg.Mode = modes[0]
	default:
		names := make([]string, len(modes))
		for i, m := range modes {
			names[i] = "--" + m.String()
		}
		sort.Strings(names)
		return nil, fmt.Errorf("%w: %s", ErrExclusiveModes, strings.Join(names, ", "))
	}

	if cfg.Mode == ModeHover {
		loc, _ := fs.GetString("hover")
		path, line, col, err := parseLocation(loc)
		if err != nil {
			return nil, err
		}
		cfg.HoverPath, cfg.HoverLine, cfg.HoverColumn = path, line, col
	}
	if (cfg.Mode == ModePrompt || cfg.Mode == ModeAsk) && strings.TrimSpace(cfg.Prompt) == "" {
		return nil, fmt.Errorf("--%s needs a request", cfg.Mode)
	}

	// Normalize extensions
	for i, ext := range cfg.Extensions {
		if len(ext) > 0 && ext[0] != '.' {
			cfg.Extensions[i] = "." + ext
		}
	}

	return cfg, nil
}

func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// parseLocation splits path:line:column. The path may itself contain colons.
func parseLocation(loc string) (string, int, int, error) {
	parts := strings.Split(loc, ":")
	if len(parts) < 3 {
		return "", 0, 0, fmt.Errorf("invalid --hover %q: want path:line:column", loc)
	}
	n := len(parts)
	line, err := strconv.Atoi(parts[n-2])
	if err != nil || line < 1 {
		return "", 0, 0, fmt.Errorf("invalid line in --hover %q", loc)
	}
	col, err := strconv.Atoi(parts[n-1])
	if err != nil || col < 0 {
		return "", 0, 0, fmt.Errorf("invalid column in --hover %q", loc)
	}
	return strings.Join(parts[:n-2], ":"), line, col, nil
}
