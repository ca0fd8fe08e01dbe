package detect

import (
	"regexp"
	"strings"
)

// Signal is the outcome of classifying a piece of user text.
type Signal int

const (
	SignalNone Signal = iota
	SignalApproval
	SignalCorrectionWeak
	SignalCorrectionStrong
)

// Correction reports whether the signal is either correction strength.
func (s Signal) Correction() bool {
	return s == SignalCorrectionWeak || s == SignalCorrectionStrong
}

// SignalClassifier decides whether free text carries a correction or
// approval signal. The interface is the seam: the regex strategy below can
// be swapped for a keyword list or a model call without touching the
// detector's control flow.
type SignalClassifier interface {
	Classify(text string) Signal
}

// RegexClassifier matches explicit correction and approval phrasing.
type RegexClassifier struct{}

var (
	strongCorrection = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\buse\s+\S+\s+instead\b`),
		regexp.MustCompile(`(?i)\b(don'?t|do not|stop|never)\s+(use|do|run)\b`),
		regexp.MustCompile(`(?i)\bthat('?s| is| was)\s+(wrong|incorrect)\b`),
		regexp.MustCompile(`(?i)^no[,.!\s]`),
	}
	weakCorrection = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bactually\b`),
		regexp.MustCompile(`(?i)\b(i'?d?\s+)?(would\s+)?(rather|prefer)\b`),
		regexp.MustCompile(`(?i)\binstead\s+of\b`),
		regexp.MustCompile(`(?i)\bnot\s+what\s+i\b`),
	}
	approval = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(perfect|exactly|great|thanks|looks good|lgtm)\b`),
		regexp.MustCompile(`(?i)^(yes|yep|yeah)[,.!\s]`),
	}

	// usePattern extracts the preferred alternative from "use X instead"
	// style phrasing.
	usePattern = regexp.MustCompile(`(?i)\buse\s+([\w./@-]+)\s+instead\b`)
)

// Classify implements SignalClassifier.
func (RegexClassifier) Classify(text string) Signal {
	t := strings.TrimSpace(text)
	if t == "" {
		return SignalNone
	}
	for _, re := range strongCorrection {
		if re.MatchString(t) {
			return SignalCorrectionStrong
		}
	}
	for _, re := range weakCorrection {
		if re.MatchString(t) {
			return SignalCorrectionWeak
		}
	}
	for _, re := range approval {
		if re.MatchString(t) {
			return SignalApproval
		}
	}
	return SignalNone
}

// preferredAlternative extracts the tool named in "use X instead" text,
// "" when no explicit alternative is named.
func preferredAlternative(text string) string {
	m := usePattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.ToLower(m[1])
}
