package catalog

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ManuelReschke/OproPay/app/models"
	"github.com/ManuelReschke/OproPay/internal/pkg/env"
	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

const (
	MaxIconBytes     = 1 << 20
	MaxIconDimension = 1000
)

// Icon is a validated upsale icon and its thumbnail, both PNG encoded.
type Icon struct {
	Original  []byte
	Thumbnail []byte
	Width     int
	Height    int
}

// IconThumbnailSize reads UPSALE_ICON_SIZE ("WxH", default 100x100).
func IconThumbnailSize() (int, int) {
	w, h, ok := strings.Cut(env.GetEnv("UPSALE_ICON_SIZE", "100x100"), "x")
	if ok {
		width, errW := strconv.Atoi(strings.TrimSpace(w))
		height, errH := strconv.Atoi(strings.TrimSpace(h))
		if errW == nil && errH == nil && width > 0 && height > 0 {
			return width, height
		}
	}
	return 100, 100
}

// ProcessIcon accepts PNG icons up to 1 MiB and 1000x1000 px and renders
// the thumbnail.
func ProcessIcon(data []byte) (*Icon, error) {
	if len(data) > MaxIconBytes {
		return nil, FieldErrors{"icon": "the image must not be larger than 1 MB"}
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || format != "png" {
		return nil, FieldErrors{"icon": "choose a PNG image"}
	}
	if cfg.Width > MaxIconDimension || cfg.Height > MaxIconDimension {
		return nil, FieldErrors{"icon": "the image must not exceed 1000x1000 px"}
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, FieldErrors{"icon": "choose a PNG image"}
	}
	width, height := IconThumbnailSize()
	thumb := imaging.Resize(img, width, height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG); err != nil {
		return nil, err
	}
	return &Icon{Original: data, Thumbnail: buf.Bytes(), Width: cfg.Width, Height: cfg.Height}, nil
}

// IconDir is where icon files are written; it is served under /uploads.
func IconDir() string {
	return env.GetEnv("UPSALE_ICON_DIR", "./uploads")
}

// SetUpsaleIcon validates data, writes the icon and its thumbnail below dir
// and points the upsale at them. Stored paths are relative to dir.
func (s *Service) SetUpsaleIcon(ctx context.Context, id uint, data []byte, dir string) (*models.Upsale, error) {
	_ = ctx
	upsale, err := s.repos.Upsale.GetUpsale(id)
	if err != nil {
		return nil, err
	}
	icon, err := ProcessIcon(data)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Join(dir, "upsales"), 0o755); err != nil {
		return nil, fmt.Errorf("create icon dir: %w", err)
	}
	base := fmt.Sprintf("%s-%s", upsale.Slug, uuid.NewString()[:8])
	original := path.Join("upsales", base+".png")
	thumbnail := path.Join("upsales", base+"-thumb.png")
	if err := os.WriteFile(filepath.Join(dir, filepath.FromSlash(original)), icon.Original, 0o644); err != nil {
		return nil, fmt.Errorf("write icon: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, filepath.FromSlash(thumbnail)), icon.Thumbnail, 0o644); err != nil {
		return nil, fmt.Errorf("write icon thumbnail: %w", err)
	}

	upsale.Icon = original
	upsale.IconThumbnail = thumbnail
	if err := s.repos.Upsale.SaveUpsale(upsale); err != nil {
		return nil, err
	}
	log.Infof("[Catalog] Icon of upsale %d set to %s (%dx%d)", upsale.ID, original, icon.Width, icon.Height)
	return upsale, nil
}
