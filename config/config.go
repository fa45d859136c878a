// Package config decodes the redundancy and safety layer configuration
// structs from a generic map, as loaded by whatever external
// YAML/JSON/TOML reader the host application uses. It uses the same
// mapstructure decode pattern as the tool-argument decoder in the
// example corpus: case-insensitive field matching, weakly typed input so
// numeric config values survive a round trip through an untyped map.
package config

import (
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/sbb-digital/go-rasta/checkcode"
	"github.com/sbb-digital/go-rasta/md4"
	"github.com/sbb-digital/go-rasta/raerr"
	"github.com/sbb-digital/go-rasta/redundancy"
	"github.com/sbb-digital/go-rasta/safety"
)

func newDecoder(result interface{}) (*mapstructure.Decoder, error) {
	return mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           result,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		MatchName: func(mapKey, fieldName string) bool {
			if mapKey == fieldName {
				return true
			}
			return strings.EqualFold(mapKey, fieldName)
		},
		ZeroFields:  true,
		ErrorUnused: false,
	})
}

// rawChannelConfig mirrors redundancy.ChannelConfig with mapstructure tags
// matching the field names a YAML/JSON config file would use.
type rawChannelConfig struct {
	RedChannelID        uint32   `mapstructure:"red_channel_id"`
	TransportChannelIDs []uint32 `mapstructure:"transport_channel_ids"`
}

type rawRedundancyConfig struct {
	CheckCodeType      string             `mapstructure:"check_code_type"`
	TSeqMs             uint32             `mapstructure:"t_seq_ms"`
	NDiagnosis         uint32             `mapstructure:"n_diagnosis"`
	NDeferQueueSize    uint32             `mapstructure:"n_defer_queue_size"`
	RedundancyChannels []rawChannelConfig `mapstructure:"redundancy_channels"`
}

// DecodeRedundancyConfig builds a redundancy.Config from a generic map.
// It only validates shape (field types, presence); semantic bounds are
// still redundancy.Diagnostics.ValidateConfiguration's job.
func DecodeRedundancyConfig(m map[string]interface{}) (redundancy.Config, error) {
	var raw rawRedundancyConfig
	dec, err := newDecoder(&raw)
	if err != nil {
		return redundancy.Config{}, raerr.Newf(raerr.InvalidParameter, "config: build decoder: %v", err)
	}
	if err := dec.Decode(m); err != nil {
		return redundancy.Config{}, raerr.Newf(raerr.InvalidParameter, "config: decode redundancy config: %v", err)
	}

	codeType, err := parseCheckCodeType(raw.CheckCodeType)
	if err != nil {
		return redundancy.Config{}, err
	}

	channels := make([]redundancy.ChannelConfig, len(raw.RedundancyChannels))
	for i, rc := range raw.RedundancyChannels {
		channels[i] = redundancy.ChannelConfig{
			RedChannelID:        rc.RedChannelID,
			TransportChannelIDs: rc.TransportChannelIDs,
		}
	}

	return redundancy.Config{
		CheckCodeType:      codeType,
		TSeqMs:             raw.TSeqMs,
		NDiagnosis:         raw.NDiagnosis,
		NDeferQueueSize:    raw.NDeferQueueSize,
		RedundancyChannels: channels,
	}, nil
}

func parseCheckCodeType(s string) (checkcode.Type, error) {
	switch strings.ToUpper(s) {
	case "A":
		return checkcode.A, nil
	case "B":
		return checkcode.B, nil
	case "C":
		return checkcode.C, nil
	case "D":
		return checkcode.D, nil
	case "E":
		return checkcode.E, nil
	default:
		return 0, raerr.Newf(raerr.InvalidParameter, "config: unknown check_code_type %q", s)
	}
}

type rawSafetyConfig struct {
	SafetyCodeType string `mapstructure:"safety_code_type"`
	IVA            uint32 `mapstructure:"iv_a"`
	IVB            uint32 `mapstructure:"iv_b"`
	IVC            uint32 `mapstructure:"iv_c"`
	IVD            uint32 `mapstructure:"iv_d"`
}

// DecodeSafetyConfig builds a safety.Config from a generic map. An IV of
// all zeroes decodes to md4.DefaultIV's RFC 1320 constants so a config
// file can omit the iv_* keys entirely and get the standard digest.
func DecodeSafetyConfig(m map[string]interface{}) (safety.Config, error) {
	var raw rawSafetyConfig
	dec, err := newDecoder(&raw)
	if err != nil {
		return safety.Config{}, raerr.Newf(raerr.InvalidParameter, "config: build decoder: %v", err)
	}
	if err := dec.Decode(m); err != nil {
		return safety.Config{}, raerr.Newf(raerr.InvalidParameter, "config: decode safety config: %v", err)
	}

	codeType, err := parseSafetyCodeType(raw.SafetyCodeType)
	if err != nil {
		return safety.Config{}, err
	}

	cfg := safety.Config{SafetyCodeType: codeType}
	if raw.IVA == 0 && raw.IVB == 0 && raw.IVC == 0 && raw.IVD == 0 {
		cfg.IV = md4.DefaultIV
	} else {
		cfg.IV = md4.IV{A: raw.IVA, B: raw.IVB, C: raw.IVC, D: raw.IVD}
	}
	return cfg, nil
}

func parseSafetyCodeType(s string) (safety.SafetyCodeType, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return safety.SafetyCodeNone, nil
	case "4":
		return safety.SafetyCode4, nil
	case "6":
		return safety.SafetyCode6, nil
	case "8":
		return safety.SafetyCode8, nil
	case "full", "16":
		return safety.SafetyCodeFull, nil
	default:
		return 0, raerr.Newf(raerr.InvalidParameter, "config: unknown safety_code_type %q", s)
	}
}
