// Package outputs copies files a run declares as outputs from its ephemeral working directory
// into durable storage.
package outputs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/harun/agentrun/internal/tracing"
)

// ErrInvalidPath is returned for declared paths that are absolute or leave the working
// directory.
var ErrInvalidPath = errors.New("invalid output path")

// Config configures a Gatherer.
type Config struct {
	Source afero.Fs // filesystem holding the working directory, the OS filesystem when nil
	Dest   afero.Fs // durable storage, the OS filesystem when nil
	Root   string   // directory under Dest where run outputs are stored
	Logger zerolog.Logger
}

// Gatherer copies declared outputs of a run under Root/<run id>/.
type Gatherer struct {
	src    afero.Fs
	dest   afero.Fs
	root   string
	logger zerolog.Logger
}

// New creates a gatherer.
func New(cfg Config) (*Gatherer, error) {
	if cfg.Root == "" {
		return nil, errors.New("output storage root is required")
	}
	src, dest := cfg.Source, cfg.Dest
	if src == nil {
		src = afero.NewOsFs()
	}
	if dest == nil {
		dest = afero.NewOsFs()
	}
	return &Gatherer{src: src, dest: dest, root: cfg.Root, logger: cfg.Logger}, nil
}

// Gather copies every file matching the declared relative paths (glob patterns allowed) from
// workDir and returns a map from relative name to stored location. Patterns that match
// nothing are skipped.
func (g *Gatherer) Gather(ctx context.Context, runID, workDir string, declared []string) (map[string]string, error) {
	out := map[string]string{}
	if len(declared) == 0 {
		return out, nil
	}
	if workDir == "" {
		return nil, errors.New("working directory is required to gather outputs")
	}
	logger := tracing.LoggerFromContext(ctx, g.logger)

	base := afero.NewBasePathFs(g.src, workDir)
	names := map[string]bool{}
	for _, pattern := range declared {
		if err := validate(pattern); err != nil {
			return nil, err
		}
		matches, err := afero.Glob(base, string(filepath.Separator)+pattern)
		if err != nil {
			return nil, fmt.Errorf("bad output pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			logger.Debug().Str("pattern", pattern).Msg("Output pattern matched nothing")
		}
		for _, m := range matches {
			info, err := base.Stat(m)
			if err != nil {
				return nil, fmt.Errorf("failed to stat output %s: %w", m, err)
			}
			if info.IsDir() {
				continue
			}
			names[strings.TrimPrefix(m, string(filepath.Separator))] = true
		}
	}

	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	for _, name := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		location := filepath.Join(g.root, runID, name)
		if err := g.copy(base, string(filepath.Separator)+name, location); err != nil {
			return nil, fmt.Errorf("failed to store output %s: %w", name, err)
		}
		out[name] = location
	}

	logger.Debug().Int("files", len(out)).Msg("Gathered output files")
	return out, nil
}

func validate(p string) error {
	if p == "" || filepath.IsAbs(p) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	clean := filepath.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return nil
}

func (g *Gatherer) copy(src afero.Fs, from, to string) error {
	in, err := src.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := g.dest.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return err
	}
	dst, err := g.dest.OpenFile(to, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, in); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
