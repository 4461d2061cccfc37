package plugin

import (
	"os"
	"strconv"
	"strings"
	"text/scanner"

	"golang.org/x/mod/semver"
	"golang.org/x/xerrors"
)

// Config is the decoded form of one nyash.toml: the set of plugin
// libraries a program wants loaded and, for each, the types and
// methods the host should expect to be published (spec.md §4.7
// "nyash.toml enumerates plugin libraries and their methods").
//
// nyash.toml's grammar is narrow enough (flat key=value sections, no
// arrays-of-tables, no inline tables) that a full TOML decoder would be
// overkill; text/scanner's tokenizer is the stdlib tool for exactly
// this kind of small hand-rolled grammar.
type Config struct {
	ABI     string
	Plugins map[string]PluginConfig
}

// PluginConfig is one [plugins.<name>] section.
type PluginConfig struct {
	Name    string
	Path    string
	Methods map[string][]string // type name -> declared method names
}

// LoadConfig reads and parses a nyash.toml file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("plugin: reading %s: %w", path, err)
	}
	return ParseConfig(string(data), path)
}

// ParseConfig parses nyash.toml source text. name is used only in error
// messages (typically the source path).
func ParseConfig(src string, name string) (*Config, error) {
	var sc scanner.Scanner
	sc.Init(strings.NewReader(src))
	sc.Filename = name
	sc.Mode = scanner.ScanIdents | scanner.ScanStrings | scanner.ScanFloats | scanner.ScanInts

	cfg := &Config{Plugins: map[string]PluginConfig{}}
	var section string
	var current PluginConfig

	flush := func() {
		if section != "" && current.Name != "" {
			cfg.Plugins[current.Name] = current
		}
	}

	tok := sc.Scan()
	for tok != scanner.EOF {
		switch tok {
		case '[':
			flush()
			section, tok = scanTableHeader(&sc)
			current = PluginConfig{Name: section, Methods: map[string][]string{}}
			continue
		case scanner.Ident:
			key := sc.TokenText()
			if sc.Scan() != '=' {
				return nil, xerrors.Errorf("plugin: %s: expected '=' after %q: %w", name, key, ErrMalformedConfig)
			}
			valTok := sc.Scan()
			val, err := scanValue(&sc, valTok)
			if err != nil {
				return nil, xerrors.Errorf("plugin: %s: %w", name, err)
			}
			switch {
			case section == "" && key == "abi":
				cfg.ABI = val
			case key == "path":
				current.Path = val
			default:
				current.Methods[key] = append(current.Methods[key], val)
			}
		}
		tok = sc.Scan()
	}
	flush()

	if cfg.ABI != "" && !semver.IsValid(cfg.ABI) {
		return nil, xerrors.Errorf("plugin: %s: abi %q is not a valid semver: %w", name, cfg.ABI, ErrMalformedConfig)
	}
	return cfg, nil
}

// CompatibleWith reports whether cfg's declared ABI is usable against a
// host running hostABI, per the compatibility rule spec.md §4.7 lays
// out for semver-versioned plugin ABIs: same major, config minor/patch
// at or below the host's.
func (c *Config) CompatibleWith(hostABI string) bool {
	if c.ABI == "" {
		return true
	}
	return semver.Major(c.ABI) == semver.Major(hostABI) && semver.Compare(c.ABI, hostABI) <= 0
}

func scanTableHeader(sc *scanner.Scanner) (string, rune) {
	var name string
	tok := sc.Scan()
	for tok != ']' && tok != scanner.EOF {
		if tok == scanner.Ident || tok == scanner.Int {
			name += sc.TokenText()
		} else {
			name += string(tok)
		}
		tok = sc.Scan()
	}
	return name, sc.Scan()
}

func scanValue(sc *scanner.Scanner, tok rune) (string, error) {
	switch tok {
	case scanner.String:
		s, err := strconv.Unquote(sc.TokenText())
		if err != nil {
			return "", xerrors.Errorf("bad string literal %q: %w", sc.TokenText(), err)
		}
		return s, nil
	case scanner.Ident, scanner.Int, scanner.Float:
		return sc.TokenText(), nil
	default:
		return "", xerrors.Errorf("unexpected value token %q: %w", sc.TokenText(), ErrMalformedConfig)
	}
}

