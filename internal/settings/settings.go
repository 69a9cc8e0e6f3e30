// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package settings persists user preferences in a flat JSON file. Missing
// keys take their defaults, PDF_MAGIC_<KEY> environment variables override
// the file, and every change is written back immediately.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/pdiddy/pdf-magic/pkg/types"
)

// Setting keys as they appear in the settings file.
const (
	KeyOutputDirectory       = "output_directory"
	KeyTheme                 = "theme"
	KeyDefaultConversionType = "default_conversion_type"
	KeyMaxConcurrent         = "max_concurrent_conversions"
	KeyOverwrite             = "overwrite_existing_files"
	KeyUseOCR                = "use_ocr_for_text_extraction"
	KeyOCRLanguage           = "ocr_language"
	KeyOCRImage              = "ocr_image"
	KeyCombineImages         = "combine_images"
	KeyDocxFont              = "docx_font"
	KeyDocxFontSize          = "docx_font_size"
	KeyImageDPI              = "image_dpi"
	KeyItemTimeout           = "item_timeout"
	KeyLogFile               = "log_file"
)

// EnvPrefix prefixes environment overrides, e.g. PDF_MAGIC_THEME.
const EnvPrefix = "PDF_MAGIC"

var (
	ErrUnknownKey   = errors.New("unknown setting")
	ErrInvalidValue = errors.New("invalid setting value")
)

// Themes lists the accepted theme names.
var Themes = []string{"default", "dark", "plain"}

type kind int

const (
	kindString kind = iota
	kindBool
	kindInt
	kindDuration
)

var kinds = map[string]kind{
	KeyOutputDirectory:       kindString,
	KeyTheme:                 kindString,
	KeyDefaultConversionType: kindString,
	KeyMaxConcurrent:         kindInt,
	KeyOverwrite:             kindBool,
	KeyUseOCR:                kindBool,
	KeyOCRLanguage:           kindString,
	KeyOCRImage:              kindString,
	KeyCombineImages:         kindBool,
	KeyDocxFont:              kindString,
	KeyDocxFontSize:          kindInt,
	KeyImageDPI:              kindInt,
	KeyItemTimeout:           kindDuration,
	KeyLogFile:               kindString,
}

// Store is a settings file bound to a private viper instance.
type Store struct {
	v    *viper.Viper
	path string
}

// DefaultPath is settings.json in the user's config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config directory: %w", err)
	}
	return filepath.Join(dir, "pdf-magic", "settings.json"), nil
}

// Open loads the settings file at path. A missing file is not an error;
// every key then has its default.
func Open(path string) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	for k, val := range defaults(path) {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	s := &Store{v: v, path: path}
	if err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) read() error {
	err := s.v.ReadInConfig()
	if err == nil {
		return nil
	}
	var nf viper.ConfigFileNotFoundError
	if errors.As(err, &nf) || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("reading settings %s: %w", s.path, err)
}

// Path returns the settings file location.
func (s *Store) Path() string { return s.path }

// Load returns the effective settings: file values over defaults, with
// environment overrides applied. Concurrency is clamped to 1..16. Any other
// value Set would reject is replaced by its default and reported in an
// error wrapping ErrInvalidValue; the returned settings are usable either way.
func (s *Store) Load() (types.Settings, error) {
	var out types.Settings
	if err := s.v.Unmarshal(&out); err != nil {
		return types.Settings{}, fmt.Errorf("decoding settings: %w", err)
	}
	if out.MaxConcurrentConversions < 1 {
		out.MaxConcurrentConversions = 1
	}
	if out.MaxConcurrentConversions > 16 {
		out.MaxConcurrentConversions = 16
	}
	return out, sanitize(&out)
}

// sanitize resets invalid values to their defaults.
func sanitize(out *types.Settings) error {
	def := types.DefaultSettings()
	var errs []error
	reject := func(key string, got any) {
		errs = append(errs, fmt.Errorf("%w: %s=%v, using default", ErrInvalidValue, key, got))
	}

	if !contains(Themes, out.Theme) {
		reject(KeyTheme, out.Theme)
		out.Theme = def.Theme
	}
	if _, err := types.ParseOperation(string(out.DefaultConversionType)); err != nil {
		reject(KeyDefaultConversionType, out.DefaultConversionType)
		out.DefaultConversionType = def.DefaultConversionType
	}
	if checkRange(KeyDocxFontSize, out.DocxFontSize) != nil {
		reject(KeyDocxFontSize, out.DocxFontSize)
		out.DocxFontSize = def.DocxFontSize
	}
	if checkRange(KeyImageDPI, out.ImageDPI) != nil {
		reject(KeyImageDPI, out.ImageDPI)
		out.ImageDPI = def.ImageDPI
	}
	if out.ItemTimeout < 0 {
		reject(KeyItemTimeout, out.ItemTimeout)
		out.ItemTimeout = def.ItemTimeout
	}
	return errors.Join(errs...)
}

// Keys returns every known key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(kinds))
	for k := range kinds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the effective value of key.
func (s *Store) Get(key string) (any, error) {
	if _, ok := kinds[key]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return s.v.Get(key), nil
}

// All returns the effective value of every key.
func (s *Store) All() map[string]any {
	out := make(map[string]any, len(kinds))
	for k := range kinds {
		out[k] = s.v.Get(k)
	}
	return out
}

// Set validates and coerces value for key, then writes it to the file.
func (s *Store) Set(key, value string) error {
	val, err := coerce(key, value)
	if err != nil {
		return err
	}
	file, err := s.readFile()
	if err != nil {
		return err
	}
	file[key] = val
	return s.write(file)
}

// Reset writes every default back to the file.
func (s *Store) Reset() error {
	return s.write(defaults(s.path))
}

func coerce(key, value string) (any, error) {
	k, ok := kinds[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	invalid := func(err error) error {
		return fmt.Errorf("%w: %s=%q: %v", ErrInvalidValue, key, value, err)
	}

	switch k {
	case kindBool:
		b, err := cast.ToBoolE(value)
		if err != nil {
			return nil, invalid(err)
		}
		return b, nil
	case kindInt:
		n, err := cast.ToIntE(value)
		if err != nil {
			return nil, invalid(err)
		}
		if err := checkRange(key, n); err != nil {
			return nil, invalid(err)
		}
		return n, nil
	case kindDuration:
		d, err := cast.ToDurationE(value)
		if err != nil {
			return nil, invalid(err)
		}
		if d < 0 {
			return nil, invalid(errors.New("must not be negative"))
		}
		return d.String(), nil
	}

	switch key {
	case KeyDefaultConversionType:
		if _, err := types.ParseOperation(value); err != nil {
			return nil, invalid(err)
		}
	case KeyTheme:
		if !contains(Themes, value) {
			return nil, invalid(fmt.Errorf("want one of %v", Themes))
		}
	}
	return value, nil
}

func checkRange(key string, n int) error {
	lo, hi := 1, 1<<30
	switch key {
	case KeyMaxConcurrent:
		lo, hi = 1, 16
	case KeyDocxFontSize:
		lo, hi = 1, 144
	case KeyImageDPI:
		lo, hi = 36, 1200
	}
	if n < lo || n > hi {
		return fmt.Errorf("must be between %d and %d", lo, hi)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// readFile returns the raw key/value pairs currently in the file, leaving
// out defaults and environment overrides.
func (s *Store) readFile() (map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings %s: %w", s.path, err)
	}
	m := map[string]any{}
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing settings %s: %w", s.path, err)
	}
	return m, nil
}

func (s *Store) write(m map[string]any) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	if err := os.WriteFile(s.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing settings %s: %w", s.path, err)
	}
	return s.read()
}

func defaults(path string) map[string]any {
	d := types.DefaultSettings()
	return map[string]any{
		KeyOutputDirectory:       d.OutputDirectory,
		KeyTheme:                 d.Theme,
		KeyDefaultConversionType: string(d.DefaultConversionType),
		KeyMaxConcurrent:         d.MaxConcurrentConversions,
		KeyOverwrite:             d.OverwriteExistingFiles,
		KeyUseOCR:                d.UseOCRForTextExtraction,
		KeyOCRLanguage:           d.OCRLanguage,
		KeyOCRImage:              d.OCRImage,
		KeyCombineImages:         d.CombineImages,
		KeyDocxFont:              d.DocxFont,
		KeyDocxFontSize:          d.DocxFontSize,
		KeyImageDPI:              d.ImageDPI,
		KeyItemTimeout:           d.ItemTimeout.String(),
		KeyLogFile:               filepath.Join(filepath.Dir(path), "logs", "pdf_magic.log"),
	}
}
