package gitfetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultExcludePatterns skip dependency trees, build output, lock files,
// secrets and binary assets.
var DefaultExcludePatterns = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/__pycache__/**",
	"**/.venv/**",
	"**/dist/**",
	"**/build/**",
	"**/*.lock",
	"**/*.min.js",
	"**/*.min.css",
	"**/*.map",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
	"**/.env",
	"**/.env.*",
	"**/*.{png,jpg,jpeg,gif,bmp,ico,svg,webp,pdf}",
	"**/*.{zip,tar,gz,tgz,bz2,xz,7z,rar,jar,war}",
	"**/*.{exe,dll,so,dylib,a,o,class,pyc,wasm,bin}",
	"**/*.{woff,woff2,ttf,otf,eot,mp3,mp4,mov,avi}",
}

// sniffLen is how much of a file is inspected for NUL bytes
const sniffLen = 8000

func compilePatterns(extra []string) ([]string, error) {
	patterns := append(append([]string(nil), DefaultExcludePatterns...), extra...)
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	return patterns, nil
}

func excluded(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

type digestResult struct {
	text      string
	files     int
	truncated bool
}

// buildDigest walks root in lexical order and concatenates every included
// text file as a "File: <path>" block until budget bytes are used.
func buildDigest(ctx context.Context, root string, exclude []string, maxFileBytes, budget int) (*digestResult, error) {
	var (
		b      strings.Builder
		result digestResult
	)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if d.Name() == ".git" || excluded(exclude, rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || excluded(exclude, rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() == 0 || info.Size() > int64(maxFileBytes) {
			return nil
		}

		content, err := readText(path)
		if err != nil || content == nil {
			return err
		}

		block := "File: " + rel + "\n" + string(content) + "\n\n"
		if b.Len()+len(block) > budget {
			if remaining := budget - b.Len(); remaining > 0 {
				b.WriteString(strings.ToValidUTF8(block[:remaining], ""))
				result.files++
			}
			result.truncated = true
			return filepath.SkipAll
		}

		b.WriteString(block)
		result.files++
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.text = b.String()
	return &result, nil
}

// readText returns the file content, or nil when the file looks binary.
func readText(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	sniff := content
	if len(sniff) > sniffLen {
		sniff = sniff[:sniffLen]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return nil, nil
	}
	return content, nil
}
