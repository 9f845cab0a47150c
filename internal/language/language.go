package language

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies a supported conversation language.
type Code string

const (
	English Code = "en"
	Hindi   Code = "hi"
	Kannada Code = "kn"
)

// ErrUnsupported is returned for codes outside the closed set.
var ErrUnsupported = errors.New("unsupported language")

// Profile carries every per-language string the client needs. A language is
// only supported when all of its fields are populated.
type Profile struct {
	Code         Code
	Name         string
	NativeName   string
	Welcome      string
	Placeholder  string
	SpeechLocale string
	Fallback     string
}

var profiles = []Profile{
	{
		Code:         English,
		Name:         "English",
		NativeName:   "English",
		Welcome:      "Hello! I am Aacharya, your health assistant. Ask me anything about health, diseases, symptoms, or available medical supplies.",
		Placeholder:  "Type your question here...",
		SpeechLocale: "en-US",
		Fallback:     "Sorry, an error occurred.",
	},
	{
		Code:         Hindi,
		Name:         "Hindi",
		NativeName:   "हिन्दी",
		Welcome:      "नमस्ते! मैं आचार्य हूँ, आपका स्वास्थ्य सहायक। मुझसे स्वास्थ्य, बीमारियों, लक्षणों या उपलब्ध चिकित्सा सामग्री के बारे में कुछ भी पूछें।",
		Placeholder:  "अपना सवाल यहाँ टाइप करें...",
		SpeechLocale: "hi-IN",
		Fallback:     "क्षमा करें, कोई त्रुटि हुई।",
	},
	{
		Code:         Kannada,
		Name:         "Kannada",
		NativeName:   "ಕನ್ನಡ",
		Welcome:      "ನಮಸ್ಕಾರ! ನಾನು ಆಚಾರ್ಯ, ನಿಮ್ಮ ಆರೋಗ್ಯ ಸಹಾಯಕ. ಆರೋಗ್ಯ, ರೋಗಗಳು, ಲಕ್ಷಣಗಳು ಅಥವಾ ಲಭ್ಯವಿರುವ ಔಷಧ ಸಾಮಗ್ರಿಗಳ ಬಗ್ಗೆ ನನ್ನ ಯಾವುದರಲ್ಲಿ ಕೇಳಿ.",
		Placeholder:  "ನಿಮ್ಮ ಪ್ರಶ್ನೆ ಇಲ್ಲಿ ಟೈಪ್ ಮಾಡಿ...",
		SpeechLocale: "kn-IN",
		Fallback:     "ಕ್ಷಮಿಸಿ, ತಪ್ಪು ಆಗಿದೆ.",
	},
}

var byCode = indexProfiles(profiles)

func indexProfiles(list []Profile) map[Code]Profile {
	index := make(map[Code]Profile, len(list))
	for _, p := range list {
		if err := p.validate(); err != nil {
			panic(err)
		}
		index[p.Code] = p
	}
	return index
}

func (p Profile) validate() error {
	if p.Code == "" || p.Welcome == "" || p.Placeholder == "" || p.SpeechLocale == "" || p.Fallback == "" {
		return fmt.Errorf("language profile %q is incomplete", p.Code)
	}
	return nil
}

// Lookup returns the profile for a code such as "hi". Surrounding whitespace
// and case are ignored.
func Lookup(code string) (Profile, error) {
	normalized := Code(strings.ToLower(strings.TrimSpace(code)))
	p, ok := byCode[normalized]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnsupported, code)
	}
	return p, nil
}

// Supported reports whether code is one of the closed set.
func Supported(code string) bool {
	_, err := Lookup(code)
	return err == nil
}

// All returns the profiles in display order.
func All() []Profile {
	return append([]Profile(nil), profiles...)
}
