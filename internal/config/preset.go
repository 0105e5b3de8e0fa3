package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-viper/encoding/ini"
	"github.com/spf13/viper"
)

// presetSection is the ini section, or top-level yaml key, holding filter settings.
const presetSection = "filter"

var presetExts = map[string]string{
	".ini":  "ini",
	".yaml": "yaml",
	".yml":  "yaml",
}

// LoadPreset reads a filter preset file into raw key/value pairs. Only the
// file format is checked here; the values are validated by the filter parser.
func LoadPreset(path string) (map[string]string, error) {
	typ, ok := presetExts[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("unsupported preset format %q (use .ini or .yaml)", filepath.Ext(path))
	}

	codecs := viper.NewCodecRegistry()
	if err := codecs.RegisterCodec("ini", ini.Codec{}); err != nil {
		return nil, fmt.Errorf("registering ini codec: %w", err)
	}
	v := viper.NewWithOptions(viper.WithCodecRegistry(codecs))
	v.SetConfigFile(path)
	v.SetConfigType(typ)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading preset %s: %w", path, err)
	}

	// Section and key lookups in viper are case-insensitive, so [FILTER] and filter: both match.
	section := v.Sub(presetSection)
	if section == nil {
		return nil, fmt.Errorf("preset %s has no [FILTER] section or it sets no keys", path)
	}
	raw := map[string]string{}
	for _, key := range section.AllKeys() {
		switch section.Get(key).(type) {
		case []interface{}, []string:
			raw[key] = strings.Join(section.GetStringSlice(key), ",")
		default:
			raw[key] = section.GetString(key)
		}
	}
	return raw, nil
}

// ResolvePreset finds a preset by name in dir, or returns nameOrPath when it is an existing file.
// Use FindPreset for names that come from outside the process.
func ResolvePreset(dir, nameOrPath string) (string, error) {
	if info, err := os.Stat(nameOrPath); err == nil && !info.IsDir() {
		return nameOrPath, nil
	}
	return FindPreset(dir, nameOrPath)
}

// FindPreset looks up a preset by bare name in dir only.
func FindPreset(dir, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid preset name %q", name)
	}
	for _, ext := range []string{".ini", ".yaml", ".yml"} {
		p := filepath.Join(dir, name+ext)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("preset %q not found in %s", name, dir)
}

// ListPresets returns the preset names in dir, sorted.
func ListPresets(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading preset directory: %w", err)
	}

	seen := map[string]bool{}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if _, ok := presetExts[ext]; !ok {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
