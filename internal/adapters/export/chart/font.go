package chart

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/image/font/opentype"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/font"
	"gonum.org/v1/plot/plotter"
)

// ErrNoFont is returned by UseFont when no candidate could be loaded.
var ErrNoFont = errors.New("no usable font found")

// SystemFontPaths are common install locations of fonts with Japanese glyphs.
var SystemFontPaths = []string{
	"/usr/share/fonts/opentype/noto/NotoSansCJK-Regular.ttc",
	"/usr/share/fonts/noto-cjk/NotoSansCJK-Regular.ttc",
	"/usr/share/fonts/google-noto-cjk/NotoSansCJK-Regular.ttc",
	"/usr/share/fonts/opentype/ipaexfont-gothic/ipaexg.ttf",
	"/usr/share/fonts/opentype/ipafont-gothic/ipagp.ttf",
	"/usr/share/fonts/truetype/takao-gothic/TakaoPGothic.ttf",
	"/System/Library/Fonts/ヒラギノ角ゴシック W3.ttc",
	"/Library/Fonts/Arial Unicode.ttf",
	`C:\Windows\Fonts\meiryo.ttc`,
	`C:\Windows\Fonts\YuGothM.ttc`,
	`C:\Windows\Fonts\msgothic.ttc`,
}

var fontMu sync.Mutex

// UseFont loads the first readable TTF, OTF or TTC among paths and makes it
// the default font of every figure drawn afterwards. Empty paths are
// skipped. It returns the path in use, or ErrNoFont with the default font
// left untouched.
func UseFont(paths ...string) (string, error) {
	var errs []error
	for _, path := range paths {
		if path == "" {
			continue
		}
		face, err := loadFace(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		fontMu.Lock()
		font.DefaultCache.Add(font.Collection{face})
		plot.DefaultFont = face.Font
		plotter.DefaultFont = face.Font
		fontMu.Unlock()
		return path, nil
	}
	if len(errs) == 0 {
		return "", ErrNoFont
	}
	return "", fmt.Errorf("%w: %w", ErrNoFont, errors.Join(errs...))
}

// loadFace parses the first font of the file at path. Single-font files
// parse as a collection of one.
func loadFace(path string) (font.Face, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return font.Face{}, err
	}
	coll, err := opentype.ParseCollection(raw)
	if err != nil {
		return font.Face{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if coll.NumFonts() == 0 {
		return font.Face{}, fmt.Errorf("parse %s: empty collection", path)
	}
	f, err := coll.Font(0)
	if err != nil {
		return font.Face{}, fmt.Errorf("parse %s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return font.Face{Font: font.Font{Typeface: font.Typeface(name)}, Face: f}, nil
}
