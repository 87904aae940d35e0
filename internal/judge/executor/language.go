package executor

import "strings"

var sourceFileNames = map[string]string{
	"python":     "main.py",
	"python3":    "main.py",
	"cpp":        "main.cpp",
	"c++":        "main.cpp",
	"c":          "main.c",
	"java":       "Main.java",
	"rust":       "main.rs",
	"javascript": "main.js",
	"js":         "main.js",
	"typescript": "main.ts",
	"go":         "main.go",
	"ruby":       "main.rb",
	"php":        "main.php",
	"swift":      "main.swift",
	"kotlin":     "Main.kt",
	"scala":      "main.scala",
	"r":          "main.R",
	"bash":       "main.sh",
	"sh":         "main.sh",
}

// SourceFileName returns the file name the remote service expects for a language.
func SourceFileName(language string) string {
	if name, ok := sourceFileNames[strings.ToLower(strings.TrimSpace(language))]; ok {
		return name
	}
	return "main.txt"
}
