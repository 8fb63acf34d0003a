// Package locale translates the messages shown to players.
package locale

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sandertv/gophertunnel/minecraft/text"
	"golang.org/x/text/language"
)

// Fallback is the language used for keys missing from the language of a player.
var Fallback = language.English

var (
	mu      sync.RWMutex
	locales = make(map[language.Tag]map[string]string)
)

// LoadDir registers a locale for every "<tag>.lang" file in the directory, such as "en.lang". It returns
// the tags registered.
func LoadDir(dir string) ([]language.Tag, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.lang"))
	if err != nil {
		return nil, fmt.Errorf("list lang files: %w", err)
	}
	tags := make([]language.Tag, 0, len(paths))
	for _, path := range paths {
		tag, err := language.Parse(strings.TrimSuffix(filepath.Base(path), ".lang"))
		if err != nil {
			return nil, fmt.Errorf("lang file %s: %w", path, err)
		}
		if err = RegisterFile(tag, path); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("no lang files in %s", dir)
	}
	return tags, nil
}

// RegisterFile registers the locale of a language from a lang file.
func RegisterFile(lang language.Tag, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open lang file: %w", err)
	}
	defer f.Close()
	return Register(lang, f)
}

// Register registers the locale of a language. Every line of r is either empty, a comment starting with
// '#', or a "key=value" pair. A value may contain the placeholders %1, %2 and so on, and "\n" for a line
// break.
func Register(lang language.Tag, r io.Reader) error {
	data := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		data[strings.TrimSpace(key)] = strings.ReplaceAll(strings.TrimSpace(value), `\n`, "\n")
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read lang file: %w", err)
	}

	mu.Lock()
	locales[lang] = data
	mu.Unlock()
	return nil
}

// Translate translates a key to the fallback language.
func Translate(key string, args ...any) string {
	return TranslateL(Fallback, key, args...)
}

// TranslateL translates a key to a language, replacing the placeholders with the arguments and
// colouring the result. Keys missing from the language are looked up in the fallback language.
func TranslateL(lang language.Tag, key string, args ...any) string {
	mu.RLock()
	translation, ok := locales[lang][key]
	if !ok {
		translation, ok = locales[Fallback][key]
	}
	mu.RUnlock()
	if !ok {
		return key
	}

	// Highest placeholder first so that %1 does not match the start of %10.
	for i := len(args); i > 0; i-- {
		translation = strings.ReplaceAll(translation, fmt.Sprintf("%%%d", i), fmt.Sprint(args[i-1]))
	}
	return text.Colourf(strings.ReplaceAll(translation, "%", "%%"))
}
