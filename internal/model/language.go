package model

// Language identifies a programming language supported by the platform.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
)

// defaultTemplates holds the code a fresh session starts with, per language.
var defaultTemplates = map[Language]string{
	LanguagePython: `# Write your Python code here
def hello():
    print("Hello, World!")

hello()
`,
	LanguageJavaScript: `// Write your JavaScript code here
function hello() {
  console.log("Hello, World!");
}

hello();
`,
}

// SupportedLanguages returns the closed set of languages sessions may use.
func SupportedLanguages() []Language {
	return []Language{LanguagePython, LanguageJavaScript}
}

// IsSupported reports whether lang is in the supported set.
func (l Language) IsSupported() bool {
	_, ok := defaultTemplates[l]
	return ok
}

// DefaultTemplate returns the starter code for the language. The language
// must be supported; unknown languages yield an empty template.
func (l Language) DefaultTemplate() string {
	return defaultTemplates[l]
}
