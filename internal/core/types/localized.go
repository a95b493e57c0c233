package types

// LocalizedText is a bilingual (English/Arabic) text value used for
// invoice line descriptions and notes. English is the fallback when the
// Arabic variant is empty.
type LocalizedText struct {
	En string `db:"en" json:"en"`
	Ar string `db:"ar" json:"ar,omitempty"`
}

// NewLocalizedText creates a text with only the English variant set.
func NewLocalizedText(en string) LocalizedText {
	return LocalizedText{En: en}
}

// IsEmpty reports whether both variants are empty.
func (t LocalizedText) IsEmpty() bool {
	return t.En == "" && t.Ar == ""
}

// In returns the variant for the given locale ("ar" or anything else for
// English), falling back to English when the requested variant is empty.
func (t LocalizedText) In(locale string) string {
	if locale == "ar" && t.Ar != "" {
		return t.Ar
	}
	return t.En
}
