package plate

import (
	"strings"
)

// ClassNames are the classes of the plate OCR model in training order:
// digits, letters, the two field anchors and the state logo variants
var ClassNames = []string{
	"0", "1", "2", "3", "4", "5", "6", "7", "8", "9",
	"a", "b", "c", "d", "e", "f", "g", "h", "i", "j",
	"k", "l", "m", "n", "o", "p", "q", "r", "s", "t",
	"u", "v", "w", "x", "y", "z",
	"prefix", "plate_number",
	"state-dxb-english", "state-dxb-arabic",
	"state-auh-logo",
	"state-shj-english", "state-shj-arabic",
	"state-fuj-arabic",
	"state-rak-english", "state-rak-arabic",
	"state-ajm-english", "state-ajm-arabic",
	"state-uaq-arabic",
	"state-qat-english", "state-qat-arabic",
}

// stateClassNames are every state logo variant the model may emit. A state
// can be indicated by more than one variant on the same plate (english
// text, arabic text and logo), so state detections are collected rather
// than deduplicated.
var stateClassNames = map[string]bool{
	"state-dxb-english": true, "state-dxb-arabic": true, "state-dxb-logo": true,
	"state-auh-english": true, "state-auh-arabic": true, "state-auh-logo": true,
	"state-shj-english": true, "state-shj-arabic": true, "state-shj-logo": true,
	"state-fuj-english": true, "state-fuj-arabic": true, "state-fuj-logo": true,
	"state-rak-english": true, "state-rak-arabic": true, "state-rak-logo": true,
	"state-ajm-english": true, "state-ajm-arabic": true, "state-ajm-logo": true,
	"state-uaq-english": true, "state-uaq-arabic": true, "state-uaq-logo": true,
	"state-qat-english": true, "state-qat-arabic": true, "state-qat-logo": true,
	"state-ksa-english": true, "state-ksa-arabic": true, "state-ksa-logo": true,
}

// IsStateClass reports whether the label is a state logo variant
func IsStateClass(label string) bool {
	return stateClassNames[label]
}

// IsCharClass reports whether the label is a single character read
// (digit or letter)
func IsCharClass(label string) bool {
	if len(label) != 1 {
		return false
	}

	c := label[0]
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')
}

// StateCode converts a state logo class name to the short site code used
// in decoded labels, e.g. "state-dxb-arabic" -> "DXB"
func StateCode(label string) string {
	parts := strings.Split(label, "-")

	if len(parts) < 2 {
		return strings.ToUpper(label)
	}

	return strings.ToUpper(parts[1])
}
