package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// ErrUnknownProfile is returned when a named profile is not defined.
var ErrUnknownProfile = errors.New("config: unknown profile")

// Profile is a named set of cost settings for one host environment:
//
//	profile "mainnet" {
//	  overhead   = 100
//	  line_limit = 10000
//	}
type Profile struct {
	Name      string `hcl:"name,label"`
	Overhead  uint64 `hcl:"overhead"`
	LineLimit int    `hcl:"line_limit,optional"`
}

// hclProfilesFile is the top-level structure of a profiles file for decoding.
type hclProfilesFile struct {
	Profiles []Profile `hcl:"profile,block"`
}

// Profiles maps profile names to their settings.
type Profiles map[string]Profile

// LoadProfiles parses the HCL profiles file at path.
// A missing file yields no profiles and no error.
func LoadProfiles(path string) (Profiles, error) {
	src, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Profiles{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read profiles %s: %w", path, err)
	}
	return ParseProfiles(src, path)
}

// ParseProfiles decodes HCL profile blocks from src; filename is used in
// diagnostics only.
func ParseProfiles(src []byte, filename string) (Profiles, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("config: parse profiles %s: %w", filename, diags)
	}

	var parsed hclProfilesFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("config: decode profiles %s: %w", filename, diags)
	}

	profiles := make(Profiles, len(parsed.Profiles))
	for _, p := range parsed.Profiles {
		if _, dup := profiles[p.Name]; dup {
			return nil, fmt.Errorf("config: profile %q defined twice in %s", p.Name, filename)
		}
		if p.LineLimit < 0 {
			return nil, fmt.Errorf("config: profile %q: line_limit must not be negative", p.Name)
		}
		profiles[p.Name] = p
	}
	return profiles, nil
}

// Lookup returns the named profile.
func (p Profiles) Lookup(name string) (Profile, error) {
	profile, ok := p[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w %q", ErrUnknownProfile, name)
	}
	return profile, nil
}
