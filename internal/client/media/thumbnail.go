package media

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"

	"github.com/dmitrijs2005/cloudchat/internal/client/models"
	"github.com/dmitrijs2005/cloudchat/internal/common"
)

const (
	ThumbnailMaxSide = 800
	ThumbnailQuality = 85
)

// ErrNoThumbnail is returned for payload types that get no thumbnail.
var ErrNoThumbnail = errors.New("no thumbnail for this type")

// Thumbnailer renders a JPEG preview of src into dst.
type Thumbnailer interface {
	Thumbnail(src string, typ models.MessageType, dst string) error
}

// ThumbnailName is the remote object name of the preview for a payload.
func ThumbnailName(name string) string {
	return common.ThumbnailPrefix + name
}

// ImageThumbnailer decodes JPEG and PNG images and downsizes them to fit
// ThumbnailMaxSide. Video frames need a platform decoder and are not
// supported.
type ImageThumbnailer struct{}

func (ImageThumbnailer) Thumbnail(src string, typ models.MessageType, dst string) error {
	if typ != models.MessageTypeImage {
		return ErrNoThumbnail
	}

	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(out, Downscale(img, ThumbnailMaxSide), &jpeg.Options{Quality: ThumbnailQuality}); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	return out.Close()
}

// Downscale shrinks img so its longer side is at most maxSide, using
// nearest-neighbour sampling. Smaller images are returned unchanged.
func Downscale(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := max(w, h)
	if longest <= maxSide || longest == 0 {
		return img
	}

	nw := max(w*maxSide/longest, 1)
	nh := max(h*maxSide/longest, 1)

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	for y := 0; y < nh; y++ {
		sy := b.Min.Y + y*h/nh
		for x := 0; x < nw; x++ {
			sx := b.Min.X + x*w/nw
			dst.Set(x, y, img.At(sx, sy))
		}
	}
	return dst
}
