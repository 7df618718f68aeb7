package cdns

import (
	"bufio"
	"os"
)

// FileLoader reads blocklist rules from a local file, one rule per line.
type FileLoader struct {
	filename    string
	opt         FileLoaderOptions
	lastSuccess []string
}

// FileLoaderOptions holds options for file blocklist loaders.
type FileLoaderOptions struct {
	// Don't fail when trying to load the list
	AllowFailure bool
}

var _ BlocklistLoader = &FileLoader{}

func NewFileLoader(filename string, opt FileLoaderOptions) *FileLoader {
	return &FileLoader{filename: filename, opt: opt}
}

func (l *FileLoader) Load() (rules []string, err error) {
	log := Log.WithField("file", l.filename)
	log.Debug("loading blocklist")

	// If AllowFailure is enabled, return the last successfully loaded list
	// and nil
	defer func() {
		if err != nil && l.opt.AllowFailure {
			log.WithError(err).Warn("failed to load blocklist, continuing with previous ruleset")
			rules = l.lastSuccess
			err = nil
		} else {
			l.lastSuccess = rules
		}
	}()

	f, err := os.Open(l.filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		rules = append(rules, scanner.Text())
	}
	log.Debug("completed loading blocklist")
	return rules, scanner.Err()
}

// Path returns the file this loader reads from, used by file watchers.
func (l *FileLoader) Path() string {
	return l.filename
}

func (l *FileLoader) String() string {
	return "File(" + l.filename + ")"
}
