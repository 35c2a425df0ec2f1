// internal/speed/prompts.go
package speed

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadPromptFile reads prompts from a text file, one prompt per line. Blank
// lines and lines starting with '#' are skipped so files can carry notes.
func LoadPromptFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening prompt file: %w", err)
	}
	defer file.Close()

	var prompts []string
	scanner := bufio.NewScanner(file)
	// Prompts can be long. Allow lines up to 1MB.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prompts = append(prompts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading prompt file: %w", err)
	}
	if len(prompts) == 0 {
		return nil, fmt.Errorf("prompt file %s contains no prompts", path)
	}
	return prompts, nil
}
