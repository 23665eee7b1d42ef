package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"

	"github.com/kestrel-lang/kestrel/codegen"
)

// Version is the compiler version manifests are checked against.
const Version = "0.4.0"

// ManifestName is the file LoadManifest looks for in a package directory.
const ManifestName = "package.kestrel.toml"

// Manifest describes a package:
//
//	[package]
//	name = "hello"
//	version = "0.1.0"
//	main = "src/main.kes"
//
//	[compiler]
//	version = ">= 0.4"
//
//	[build]
//	target = "server"
//	optimization = 2
type Manifest struct {
	Package  PackageSection  `toml:"package"`
	Compiler CompilerSection `toml:"compiler"`
	Build    BuildSection    `toml:"build"`

	// Dir is the directory the manifest was loaded from.
	Dir string `toml:"-"`
}

type PackageSection struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	// Main is the source file holding main, relative to Dir.
	Main string `toml:"main"`
}

type CompilerSection struct {
	// Version is a semver constraint on the compiler, e.g. "^0.4".
	Version string `toml:"version"`
}

type BuildSection struct {
	Target       string `toml:"target"`
	Entry        string `toml:"entry"`
	Runtime      string `toml:"runtime"`
	Optimization *int   `toml:"optimization"`
	Debug        bool   `toml:"debug"`
	// Output is the module path, relative to Dir.
	Output string `toml:"output"`
}

var ErrNoManifest = errors.New("no " + ManifestName)

// FindManifest returns the manifest path in dir or the closest parent
// directory holding one.
func FindManifest(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, ManifestName)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoManifest
		}
		dir = parent
	}
}

// LoadManifest reads and validates the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Dir = filepath.Dir(path)
	return m, nil
}

// ParseManifest decodes and validates manifest text.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %s", undecoded[0])
	}
	if m.Package.Name == "" {
		return nil, errors.New("package.name is required")
	}
	if m.Package.Version != "" {
		if _, err := semver.NewVersion(m.Package.Version); err != nil {
			return nil, fmt.Errorf("package.version: %w", err)
		}
	}
	if err := m.CheckCompiler(Version); err != nil {
		return nil, err
	}
	if _, err := m.Target(codegen.DefaultTarget()); err != nil {
		return nil, err
	}
	return &m, nil
}

// CheckCompiler reports whether version satisfies compiler.version.
func (m *Manifest) CheckCompiler(version string) error {
	if m.Compiler.Version == "" {
		return nil
	}
	c, err := semver.NewConstraint(m.Compiler.Version)
	if err != nil {
		return fmt.Errorf("compiler.version: %w", err)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("compiler version %q: %w", version, err)
	}
	if ok, errs := c.Validate(v); !ok {
		if len(errs) > 0 {
			return fmt.Errorf("package %s needs compiler %s: %w", m.Package.Name, m.Compiler.Version, errs[0])
		}
		return fmt.Errorf("package %s needs compiler %s, have %s", m.Package.Name, m.Compiler.Version, version)
	}
	return nil
}

// Target applies the build section on top of base.
func (m *Manifest) Target(base Target) (Target, error) {
	t := base
	b := m.Build
	if b.Target != "" {
		t.Name = b.Target
	}
	if b.Entry != "" {
		t.Entry = b.Entry
	}
	if b.Runtime != "" {
		t.Runtime = codegen.Runtime(b.Runtime)
	}
	if b.Optimization != nil {
		t.Optimization = *b.Optimization
	}
	t.Debug = t.Debug || b.Debug
	if err := t.Validate(); err != nil {
		return Target{}, fmt.Errorf("build: %w", err)
	}
	return t, nil
}

// MainPath returns the path of the main source file.
func (m *Manifest) MainPath() string {
	main := m.Package.Main
	if main == "" {
		main = "main.kes"
	}
	return filepath.Join(m.Dir, main)
}

// OutputPath returns the path the module is written to.
func (m *Manifest) OutputPath() string {
	if m.Build.Output != "" {
		return filepath.Join(m.Dir, m.Build.Output)
	}
	return filepath.Join(m.Dir, m.Package.Name+".wasm")
}
