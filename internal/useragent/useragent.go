// Package useragent classifies raw user-agent strings into a device type,
// browser name+version, and operating system. It runs on attacker-influenced
// input, so it never fails: anything unrecognized maps to the Unknown
// sentinel.
package useragent

import (
	"regexp"
	"strings"
)

// Unknown is returned for any browser, version, or OS that cannot be
// recognized.
const Unknown = "Unknown"

// Device types.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

// Info is the classification result.
type Info struct {
	DeviceType     string
	BrowserName    string
	BrowserVersion string
	OS             string
}

var (
	tabletRe = regexp.MustCompile(`tablet|ipad|kindle|silk`)
	mobileRe = regexp.MustCompile(`mobile|android|iphone|ipod|blackberry|windows phone`)

	edgeVerRe    = regexp.MustCompile(`(?:edge|edg)/(\d+\.\d+)`)
	operaVerRe   = regexp.MustCompile(`(?:opr|opera)/(\d+\.\d+)`)
	chromeVerRe  = regexp.MustCompile(`chrome/(\d+\.\d+)`)
	firefoxVerRe = regexp.MustCompile(`firefox/(\d+\.\d+)`)
	safariVerRe  = regexp.MustCompile(`version/(\d+\.\d+)`)

	macVerRe     = regexp.MustCompile(`mac os x (\d+[._]\d+)`)
	androidVerRe = regexp.MustCompile(`android (\d+\.\d+)`)
	iosVerRe     = regexp.MustCompile(`os (\d+[._]\d+)`)
)

// Classify parses a user-agent string. It is pure and deterministic.
func Classify(ua string) Info {
	lower := strings.ToLower(ua)
	name, version := browser(lower)
	return Info{
		DeviceType:     deviceType(lower),
		BrowserName:    name,
		BrowserVersion: version,
		OS:             osName(lower),
	}
}

// deviceType checks tablet markers before mobile markers: tablet strings
// (iPad, Android tablets) frequently also match the generic mobile patterns.
func deviceType(ua string) string {
	if tabletRe.MatchString(ua) {
		return DeviceTablet
	}
	if mobileRe.MatchString(ua) {
		return DeviceMobile
	}
	return DeviceDesktop
}

// browser resolves the browser name and version. Order matters: Edge and
// Opera embed both "Chrome" and "Safari" tokens, and Chrome embeds "Safari",
// so the most specific tokens are checked first.
func browser(ua string) (string, string) {
	switch {
	case strings.Contains(ua, "edge") || strings.Contains(ua, "edg/"):
		return "Edge", matchVersion(edgeVerRe, ua)
	case strings.Contains(ua, "opr") || strings.Contains(ua, "opera"):
		return "Opera", matchVersion(operaVerRe, ua)
	case strings.Contains(ua, "chrome"):
		return "Chrome", matchVersion(chromeVerRe, ua)
	case strings.Contains(ua, "firefox"):
		return "Firefox", matchVersion(firefoxVerRe, ua)
	case strings.Contains(ua, "safari"):
		return "Safari", matchVersion(safariVerRe, ua)
	default:
		return Unknown, Unknown
	}
}

func matchVersion(re *regexp.Regexp, ua string) string {
	if m := re.FindStringSubmatch(ua); m != nil {
		return m[1]
	}
	return Unknown
}

func osName(ua string) string {
	switch {
	case strings.Contains(ua, "windows nt 10"):
		return "Windows 10"
	case strings.Contains(ua, "windows nt 6.3"):
		return "Windows 8.1"
	case strings.Contains(ua, "windows nt 6.2"):
		return "Windows 8"
	case strings.Contains(ua, "windows nt 6.1"):
		return "Windows 7"
	case strings.Contains(ua, "windows phone"):
		return "Windows Phone"
	case strings.Contains(ua, "windows"):
		return "Windows"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"), strings.Contains(ua, "ipod"):
		if m := iosVerRe.FindStringSubmatch(ua); m != nil {
			return "iOS " + strings.ReplaceAll(m[1], "_", ".")
		}
		return "iOS"
	case strings.Contains(ua, "mac os x"):
		if m := macVerRe.FindStringSubmatch(ua); m != nil {
			return "macOS " + strings.ReplaceAll(m[1], "_", ".")
		}
		return "macOS"
	case strings.Contains(ua, "mac"):
		return "macOS"
	case strings.Contains(ua, "android"):
		if m := androidVerRe.FindStringSubmatch(ua); m != nil {
			return "Android " + m[1]
		}
		return "Android"
	case strings.Contains(ua, "ubuntu"):
		return "Ubuntu"
	case strings.Contains(ua, "fedora"):
		return "Fedora"
	case strings.Contains(ua, "linux"):
		return "Linux"
	default:
		return Unknown
	}
}
