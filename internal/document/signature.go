package document

import (
	"encoding/base64"
	"net/url"
	"regexp"
	"strings"
)

// SignInput is what a signer submits through the portal.
type SignInput struct {
	SignerName   string `json:"signer_name"`
	SignerEmail  string `json:"signer_email"`
	SignatureSVG string `json:"signature_svg"`
	IPAddress    string `json:"ip_address"`
}

var svgRoot = regexp.MustCompile(`(?i)<svg[\s>/]`)

const svgDataPrefix = "data:image/svg+xml"

// Validate returns every problem with the submission, not just the first.
func (in SignInput) Validate() []string {
	var reasons []string
	if strings.TrimSpace(in.SignerName) == "" {
		reasons = append(reasons, "signer name is required")
	}
	if !strings.Contains(in.SignerEmail, "@") {
		reasons = append(reasons, "signer email must contain @")
	}
	sig := strings.TrimSpace(in.SignatureSVG)
	switch {
	case sig == "":
		reasons = append(reasons, "signature is required")
	case !validSignature(sig):
		reasons = append(reasons, "signature must contain an <svg> element")
	}
	return reasons
}

// validSignature accepts raster data URLs as-is and requires an <svg> root
// in anything that is vector markup, inline or as an SVG data URL.
func validSignature(sig string) bool {
	lower := strings.ToLower(sig)
	switch {
	case strings.HasPrefix(lower, svgDataPrefix):
		markup, ok := decodeDataURL(sig)
		return ok && svgRoot.MatchString(markup)
	case strings.HasPrefix(lower, "data:"):
		return true
	default:
		return svgRoot.MatchString(sig)
	}
}

func decodeDataURL(s string) (string, bool) {
	meta, data, found := strings.Cut(s, ",")
	if !found {
		return "", false
	}
	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		raw, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return "", false
		}
		return string(raw), true
	}
	decoded, err := url.PathUnescape(data)
	if err != nil {
		return "", false
	}
	return decoded, true
}
