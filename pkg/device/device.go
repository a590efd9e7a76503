package device

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	ua "github.com/mileusna/useragent"
)

// Class is a coarse device category.
type Class string

const (
	ClassDesktop Class = "desktop"
	ClassMobile  Class = "mobile"
	ClassTablet  Class = "tablet"
)

// Environment holds the signals observed in a client runtime.
type Environment struct {
	UserAgent           string
	Language            string
	ScreenWidth         int
	ScreenHeight        int
	ColorDepth          int
	TimezoneOffset      int // minutes from UTC, as reported by the runtime
	HardwareConcurrency int
	MaxTouchPoints      int
}

// Info describes a device. It is computed once per session start.
type Info struct {
	Fingerprint string `json:"fingerprint"`
	Browser     string `json:"browser"`
	OS          string `json:"os"`
	Class       Class  `json:"device_type"`
	UserAgent   string `json:"user_agent"`
}

// Sentinel is returned for non-browser execution contexts.
var Sentinel = Info{
	Fingerprint: "server",
	Browser:     "unknown",
	OS:          "unknown",
	Class:       ClassDesktop,
	UserAgent:   "server",
}

// Label returns a short human readable description, e.g. "Chrome on Windows".
func (i Info) Label() string {
	return i.Browser + " on " + i.OS
}

// Generate derives device info from env. It is pure and deterministic.
func Generate(env *Environment) Info {
	if env == nil {
		return Sentinel
	}

	parsed := ua.Parse(env.UserAgent)

	return Info{
		Fingerprint: fingerprint(env),
		Browser:     orUnknown(parsed.Name),
		OS:          orUnknown(parsed.OS),
		Class:       classify(parsed, env),
		UserAgent:   env.UserAgent,
	}
}

func fingerprint(env *Environment) string {
	components := []string{
		env.UserAgent,
		env.Language,
		strconv.Itoa(env.ScreenWidth) + "x" + strconv.Itoa(env.ScreenHeight) + "x" + strconv.Itoa(env.ColorDepth),
		strconv.Itoa(env.TimezoneOffset),
		strconv.Itoa(env.HardwareConcurrency),
		strconv.Itoa(env.MaxTouchPoints),
	}
	return strconv.FormatUint(xxhash.Sum64String(strings.Join(components, "|")), 36)
}

func classify(parsed ua.UserAgent, env *Environment) Class {
	switch {
	case parsed.Tablet:
		return ClassTablet
	case parsed.Mobile:
		return ClassMobile
	// iPadOS reports a desktop Safari user agent; touch support gives it away.
	case parsed.OS == ua.MacOS && env.MaxTouchPoints > 1:
		return ClassTablet
	default:
		return ClassDesktop
	}
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return s
}
