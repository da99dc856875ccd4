package provider

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/prowl/uaprofile"
)

// descriptorYAML is the on-disk descriptor schema. One YAML document is a
// map of provider name to this shape.
type descriptorYAML struct {
	URL             string            `yaml:"url"`
	Method          string            `yaml:"method"`
	Timeout         float64           `yaml:"timeout"` // seconds
	UAProfile       string            `yaml:"ua_profile"`
	Headers         map[string]string `yaml:"headers"`
	SuccessPatterns []string          `yaml:"success_patterns"`
	ErrorPatterns   []string          `yaml:"error_patterns"`
	BlockedPatterns []string          `yaml:"blocked_patterns"`
	Regex           bool              `yaml:"regex"`
	JSONEndpoint    string            `yaml:"json_endpoint"`
	PresenceHint    string            `yaml:"presence_hint"`
	NoRedirects     bool              `yaml:"no_redirects"`
}

// builtinPresenceHints backfills presence heuristics for well-known sites
// whose packs predate the presence_hint key.
var builtinPresenceHints = map[string]string{
	"tiktok": "@{username}",
	"github": "users/{username}",
}

// ParsePack reads every YAML document from r and returns descriptors in
// document+key order. A descriptor that fails validation is excluded and
// logged; only an unreadable stream is a hard error.
func ParsePack(r io.Reader, source string, log *slog.Logger) ([]Descriptor, error) {
	if log == nil {
		log = slog.Default()
	}
	dec := yaml.NewDecoder(r)
	var out []Descriptor
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("provider: parse %s: %w", source, err)
		}
		root := &doc
		if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
			root = root.Content[0]
		}
		if root.Kind != yaml.MappingNode {
			log.Warn("provider: pack document is not a mapping, skipped", "source", source)
			continue
		}
		// Mapping content alternates key, value; iterating it preserves
		// the author's ordering, which the registry promises to keep.
		for i := 0; i+1 < len(root.Content); i += 2 {
			name := root.Content[i].Value
			var raw descriptorYAML
			if err := root.Content[i+1].Decode(&raw); err != nil {
				log.Warn("provider: descriptor skipped", "source", source, "name", name, "error", err)
				continue
			}
			desc, err := buildDescriptor(name, raw)
			if err != nil {
				log.Warn("provider: descriptor skipped", "source", source, "name", name, "error", err)
				continue
			}
			out = append(out, desc)
		}
	}
	return out, nil
}

// ParsePackFile is ParsePack over a file path.
func ParsePackFile(path string, log *slog.Logger) ([]Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("provider: open pack %s: %w", path, err)
	}
	defer f.Close()
	return ParsePack(f, path, log)
}

func buildDescriptor(name string, raw descriptorYAML) (Descriptor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Descriptor{}, errors.New("provider: empty provider name")
	}
	if raw.URL == "" {
		return Descriptor{}, errors.New("provider: url is required")
	}
	if !strings.Contains(raw.URL, "{username}") {
		return Descriptor{}, fmt.Errorf("provider: url %q lacks {username} placeholder", raw.URL)
	}
	if _, err := uaprofile.Lookup(raw.UAProfile); err != nil {
		return Descriptor{}, err
	}

	success, err := compilePatterns(raw.SuccessPatterns, raw.Regex)
	if err != nil {
		return Descriptor{}, err
	}
	errorPats, err := compilePatterns(raw.ErrorPatterns, raw.Regex)
	if err != nil {
		return Descriptor{}, err
	}
	blocked, err := compilePatterns(raw.BlockedPatterns, raw.Regex)
	if err != nil {
		return Descriptor{}, err
	}

	hint := raw.PresenceHint
	if hint == "" {
		hint = builtinPresenceHints[name]
	}

	d := Descriptor{
		Name:            name,
		URL:             raw.URL,
		Method:          raw.Method,
		Timeout:         time.Duration(raw.Timeout * float64(time.Second)),
		UAProfile:       raw.UAProfile,
		Headers:         raw.Headers,
		SuccessPatterns: success,
		ErrorPatterns:   errorPats,
		BlockedPatterns: blocked,
		PresenceHint:    hint,
		JSONEndpoint:    raw.JSONEndpoint,
		NoRedirects:     raw.NoRedirects,
	}
	d.applyDefaults()
	return d, nil
}
