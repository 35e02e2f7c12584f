package blogcore

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

// Size classes for image variants. Each uploaded image is re-encoded at
// every size that fits within the bound, preserving aspect ratio and never
// upscaling.
var imageSizes = []struct {
	name string
	maxW int
	maxH int
}{
	{"thumbnail", 400, 400},
	{"medium", 800, 800},
	{"large", 1920, 1920},
}

const jpegQuality = 85

// Formats rejected up front, before touching the decoder. The stdlib
// decoder cannot read them anyway, but the extension check gives the user
// an actionable error instead of a generic decode failure.
var unsupportedExts = map[string]bool{
	".heic": true,
	".heif": true,
}

// Pipeline turns raw uploads into resized JPEG variant sets on disk.
type Pipeline struct {
	uploadsDir string
	urlPrefix  string
	log        *zap.Logger
}

// NewPipeline creates a Pipeline writing variants into uploadsDir. Stored
// variant paths are URL paths under "/uploads/".
func NewPipeline(uploadsDir string, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{uploadsDir: uploadsDir, urlPrefix: "/uploads/", log: log}
}

// Ingest processes a batch of uploads in input order, one variant set per
// file. A failure aborts that file and propagates; variant sets already
// produced for earlier files in the batch are not rolled back; the caller
// decides whether to abandon the whole operation.
func (p *Pipeline) Ingest(files []UploadedFile) ([]ImageVariantSet, error) {
	sets := make([]ImageVariantSet, 0, len(files))
	for _, f := range files {
		set, err := p.Process(f.Path, f.OriginalName)
		if err != nil {
			return sets, err
		}
		sets = append(sets, set)
	}
	return sets, nil
}

// Process converts one uploaded file into its three resized variants and
// deletes the temp upload on success. The filename must already be uniqued
// by the caller (timestamp-suffixed at the upload boundary); Process only
// derives deterministic per-size names from it.
func (p *Pipeline) Process(inputPath, filename string) (ImageVariantSet, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	if unsupportedExts[ext] {
		return ImageVariantSet{}, fmt.Errorf("%q: %w", filename, ErrUnsupportedFormat)
	}

	src, err := os.Open(inputPath)
	if err != nil {
		return ImageVariantSet{}, &ImageProcessingError{Filename: filename, Err: err}
	}
	img, _, err := image.Decode(src)
	src.Close()
	if err != nil {
		// Spoofed extensions land here: the decoder not recognizing the
		// payload means an unsupported format, not a broken file.
		if errors.Is(err, image.ErrFormat) {
			return ImageVariantSet{}, fmt.Errorf("%q: %w", filename, ErrUnsupportedFormat)
		}
		return ImageVariantSet{}, &ImageProcessingError{Filename: filename, Err: err}
	}

	if err := os.MkdirAll(p.uploadsDir, 0o755); err != nil {
		return ImageVariantSet{}, &ImageProcessingError{Filename: filename, Err: err}
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	var set ImageVariantSet
	set.OriginalWidth = w
	set.OriginalHeight = h
	if h > 0 {
		set.AspectRatio = float64(w) / float64(h)
	}

	for _, size := range imageSizes {
		outW, outH := fitWithin(w, h, size.maxW, size.maxH)
		outName := fmt.Sprintf("%s-%s.jpg", base, size.name)
		outPath := filepath.Join(p.uploadsDir, outName)
		if err := writeJPEG(outPath, img, outW, outH); err != nil {
			// Variants already written for this file are orphaned; cleanup
			// is best-effort only and a failure here must not mask err.
			return ImageVariantSet{}, &ImageProcessingError{Filename: filename, Err: err}
		}
		url := p.urlPrefix + outName
		switch size.name {
		case "thumbnail":
			set.Thumbnail = url
		case "medium":
			set.Medium = url
		case "large":
			set.Large = url
		}
	}

	if err := os.Remove(inputPath); err != nil {
		// The variants exist and the post can proceed; a stale temp file
		// is a cleanup concern, not a request failure.
		p.log.Warn("remove temp upload", zap.String("path", inputPath), zap.Error(err))
	}
	return set, nil
}

// fitWithin scales (w, h) down to fit inside (maxW, maxH) preserving aspect
// ratio. Dimensions already within the bound are returned unchanged: the
// pipeline never upscales.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	scaleW := float64(maxW) / float64(w)
	scaleH := float64(maxH) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	outW := int(float64(w)*scale + 0.5)
	outH := int(float64(h)*scale + 0.5)
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}
	return outW, outH
}

func writeJPEG(path string, src image.Image, w, h int) error {
	out := src
	if b := src.Bounds(); w != b.Dx() || h != b.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
		out = dst
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, out, &jpeg.Options{Quality: jpegQuality}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// RemoveVariants deletes every size of every variant set from disk.
// Missing files are ignored; other failures are logged and swallowed;
// file cleanup is explicitly best-effort and never fails the request.
func (p *Pipeline) RemoveVariants(sets []ImageVariantSet) {
	for _, set := range sets {
		for _, url := range []string{set.Thumbnail, set.Medium, set.Large} {
			if url == "" {
				continue
			}
			path := filepath.Join(p.uploadsDir, filepath.Base(url))
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				p.log.Warn("remove image variant", zap.String("path", path), zap.Error(err))
			}
		}
	}
}
