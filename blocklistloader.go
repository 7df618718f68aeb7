package cdns

import "fmt"

// BlocklistLoader produces the raw rule lines that get parsed into a
// blocklist matcher.
type BlocklistLoader interface {
	// Returns a list of rules that can then be inserted into a matcher.
	Load() ([]string, error)

	fmt.Stringer
}
