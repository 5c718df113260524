package model

// OCRChannelConfig is the per-channel OCR routing configuration (§4.7,
// §4.7.1): which role(s) a channel plays (read/response/fallback) and which
// OCR language to use for it.
type OCRChannelConfig struct {
	Language          string `json:"language,omitempty"` // "eng" (default) or "rus"
	IsReadChannel     bool   `json:"is_read_channel"`
	IsResponseChannel bool   `json:"is_response_channel"`
	IsFallbackChannel bool   `json:"is_fallback_channel"`
}

// OCRGuildConfig is the per-guild set of channel configurations.
type OCRGuildConfig struct {
	Channels map[string]*OCRChannelConfig `json:"channels,omitempty"`
}

// OCRConfigFile is the on-disk shape of data/ocr_config.json — supplemented
// (not named explicitly in spec §6's persistence layout, but required to
// drive §4.7.1 routing; grounded on original_source/core/ocr.py's
// ocr_channel_config/ocr_response_channels/ocr_read_channels/
// ocr_response_fallback bot-config entries).
type OCRConfigFile struct {
	Guilds map[string]*OCRGuildConfig `json:"guilds"`
}

// DefaultOCRLanguage is used when a channel has no language override.
const DefaultOCRLanguage = "eng"
