package model

import (
	"errors"
	"fmt"
	"strings"
)

// unknownStr is the string representation for unknown enum values.
const unknownStr = "unknown"

// ErrUnknownPurpose is returned when a collection purpose is not one of the
// allowed values.
var ErrUnknownPurpose = errors.New("unknown collection purpose")

// ErrUnknownPlatform is returned when a platform name is not recognized.
var ErrUnknownPlatform = errors.New("unknown platform")

// Purpose is the declared reason for collecting data.
// Only non-commercial purposes are accepted.
type Purpose string

// Allowed collection purposes.
const (
	// PurposeResearch is data collection for research.
	PurposeResearch Purpose = "research"
	// PurposeLearning is data collection for personal study.
	PurposeLearning Purpose = "learning"
	// PurposeAcademic is data collection for academic work.
	PurposeAcademic Purpose = "academic"
)

// String returns the string representation of the Purpose.
func (p Purpose) String() string {
	if p == "" {
		return unknownStr
	}
	return string(p)
}

// IsValid returns true if this is an allowed purpose.
func (p Purpose) IsValid() bool {
	switch p {
	case PurposeResearch, PurposeLearning, PurposeAcademic:
		return true
	default:
		return false
	}
}

// AllowedPurposes returns the accepted purposes in display order.
func AllowedPurposes() []Purpose {
	return []Purpose{PurposeResearch, PurposeLearning, PurposeAcademic}
}

// ParsePurpose converts a string to Purpose.
// Matching is case-insensitive; anything else returns ErrUnknownPurpose.
func ParsePurpose(s string) (Purpose, error) {
	p := Purpose(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q (allowed: research, learning, academic)", ErrUnknownPurpose, s)
	}
	return p, nil
}

// Platform identifies a data source.
type Platform string

// Known platforms.
const (
	// PlatformDianping is the review site that sessions crawl.
	PlatformDianping Platform = "dianping"
	// PlatformAmap is the Amap (Gaode) place search API.
	PlatformAmap Platform = "amap"
	// PlatformBaidu is the Baidu Maps place search API.
	PlatformBaidu Platform = "baidu"
	// PlatformTencent is the Tencent location service search API.
	PlatformTencent Platform = "tencent"
)

// String returns the string representation of the Platform.
func (p Platform) String() string {
	if p == "" {
		return unknownStr
	}
	return string(p)
}

// IsValid returns true if this is a known platform.
func (p Platform) IsValid() bool {
	switch p {
	case PlatformDianping, PlatformAmap, PlatformBaidu, PlatformTencent:
		return true
	default:
		return false
	}
}

// IsReviewSource reports whether sessions can crawl reviews from the platform.
func (p Platform) IsReviewSource() bool {
	return p == PlatformDianping
}

// IsPOISource reports whether the platform is a map-search POI source.
func (p Platform) IsPOISource() bool {
	switch p {
	case PlatformAmap, PlatformBaidu, PlatformTencent:
		return true
	default:
		return false
	}
}

// ParsePlatform converts a string to Platform.
// A few common aliases are accepted; anything else returns ErrUnknownPlatform.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dianping", "dzdp":
		return PlatformDianping, nil
	case "amap", "gaode":
		return PlatformAmap, nil
	case "baidu":
		return PlatformBaidu, nil
	case "tencent", "qq":
		return PlatformTencent, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
	}
}
