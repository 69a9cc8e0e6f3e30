// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Settings holds the persisted user preferences. Keys mirror the settings
// file; a key missing from the file takes its value from DefaultSettings.
type Settings struct {
	// OutputDirectory is the base directory for results. When empty, output
	// goes to Converted_<OP> next to the first input.
	OutputDirectory string `json:"output_directory" mapstructure:"output_directory"`

	// Theme selects console colouring: default, dark, or plain.
	Theme string `json:"theme" mapstructure:"theme"`

	// DefaultConversionType is the operation used by the convert command.
	DefaultConversionType Operation `json:"default_conversion_type" mapstructure:"default_conversion_type"`

	// MaxConcurrentConversions bounds the number of tasks running at once.
	MaxConcurrentConversions int `json:"max_concurrent_conversions" mapstructure:"max_concurrent_conversions"`

	// OverwriteExistingFiles disables the name(1).ext collision policy.
	OverwriteExistingFiles bool `json:"overwrite_existing_files" mapstructure:"overwrite_existing_files"`

	// UseOCRForTextExtraction enables the OCR fallback for PDFs without a text layer.
	UseOCRForTextExtraction bool `json:"use_ocr_for_text_extraction" mapstructure:"use_ocr_for_text_extraction"`

	// OCRLanguage is the tesseract language code.
	OCRLanguage string `json:"ocr_language" mapstructure:"ocr_language"`

	// OCRImage is the container image used when no local tesseract is installed.
	OCRImage string `json:"ocr_image" mapstructure:"ocr_image"`

	// CombineImages makes img2pdf write one multi-page PDF instead of one per image.
	CombineImages bool `json:"combine_images" mapstructure:"combine_images"`

	// DocxFont and DocxFontSize are applied to every run after PDF to DOCX conversion.
	DocxFont     string `json:"docx_font" mapstructure:"docx_font"`
	DocxFontSize int    `json:"docx_font_size" mapstructure:"docx_font_size"`

	// ImageDPI is the render resolution for PDF to image conversion.
	ImageDPI int `json:"image_dpi" mapstructure:"image_dpi"`

	// ItemTimeout bounds a single item's transform. Zero disables it.
	ItemTimeout time.Duration `json:"item_timeout" mapstructure:"item_timeout"`

	// LogFile is the append-only application log.
	LogFile string `json:"log_file" mapstructure:"log_file"`
}

// DefaultSettings returns the values used for keys missing from the settings file.
func DefaultSettings() Settings {
	return Settings{
		Theme:                    "default",
		DefaultConversionType:    OpConvertToDocx,
		MaxConcurrentConversions: 2,
		OverwriteExistingFiles:   false,
		UseOCRForTextExtraction:  true,
		OCRLanguage:              "eng",
		OCRImage:                 "tesseractshadow/tesseract4re:latest",
		CombineImages:            false,
		DocxFont:                 "Arial",
		DocxFontSize:             11,
		ImageDPI:                 150,
	}
}
