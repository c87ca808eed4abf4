// Package promofile reads pre-generated promo codes, one per line, from
// files kept on disk or in an S3 bucket.
package promofile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuelReschke/OproPay/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
)

var (
	ErrNoMoreCodes = errors.New("promo code file has no more codes")
	ErrInvalidName = errors.New("invalid promo code file name")
)

// Source returns line n (zero based) of a promo code file.
type Source interface {
	ReadLine(ctx context.Context, file string, line int) (string, error)
}

// NewSourceFromEnv returns an S3 source when PROMO_FILES_S3_BUCKET is set and
// a directory source otherwise.
func NewSourceFromEnv(ctx context.Context) (Source, error) {
	cfg, err := LoadS3Config()
	if err != nil {
		return nil, err
	}
	if cfg.Enabled() {
		return NewS3Source(ctx, cfg)
	}
	dir := env.GetEnv("PROMO_FILES_DIR", "./promo")
	log.Infof("[PromoFile] Reading promo code files from %s", dir)
	return &LocalSource{Dir: dir}, nil
}

// LocalSource reads files below Dir.
type LocalSource struct {
	Dir string
}

func (s *LocalSource) ReadLine(ctx context.Context, file string, line int) (string, error) {
	name, err := cleanName(file)
	if err != nil {
		return "", err
	}
	f, err := os.Open(filepath.Join(s.Dir, filepath.FromSlash(name)))
	if err != nil {
		return "", fmt.Errorf("open promo file %s: %w", name, err)
	}
	defer f.Close()
	return scanLine(ctx, f, line)
}

// cleanName rejects names that would escape the storage root.
func cleanName(file string) (string, error) {
	name := strings.TrimSpace(strings.ReplaceAll(file, "\\", "/"))
	name = strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+name)), "/")
	if name == "" || name == "." || strings.HasPrefix(strings.TrimSpace(file), "..") || strings.Contains(file, "/../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, file)
	}
	return name, nil
}

func scanLine(ctx context.Context, r io.Reader, line int) (string, error) {
	if line < 0 {
		return "", fmt.Errorf("invalid line %d", line)
	}
	scanner := bufio.NewScanner(r)
	for i := 0; scanner.Scan(); i++ {
		if i == line {
			return strings.TrimSpace(scanner.Text()), nil
		}
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return "", err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", ErrNoMoreCodes
}
