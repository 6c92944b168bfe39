package jobspec

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/abz10m/mrctl/internal/workitem"
)

// ResolveInput expands src into the initial set of fresh work items. baseDir
// anchors relative glob patterns and line-delimited file paths.
func ResolveInput(src InputSource, baseDir string) ([]workitem.Item, error) {
	switch src.Kind {
	case InputGlob:
		return resolveGlob(src.Pattern, baseDir)
	case InputStaticJSON:
		return resolveStaticJSON(src.Items)
	case InputLineDelimited:
		return resolveLineDelimited(filepath.Join(baseDir, src.Path))
	default:
		return nil, fmt.Errorf("jobspec: unknown input source kind %q", src.Kind)
	}
}

// resolveGlob expands a doublestar pattern (supporting "**" recursive
// matches) rooted at baseDir into one fresh work item per matched path,
// item_id set to the path relative to baseDir.
func resolveGlob(pattern, baseDir string) ([]workitem.Item, error) {
	fsys := os.DirFS(baseDir)
	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("jobspec: expanding glob %q: %w", pattern, err)
	}
	sort.Strings(matches)

	items := make([]workitem.Item, 0, len(matches))
	for _, m := range matches {
		data, err := json.Marshal(map[string]string{"path": m})
		if err != nil {
			return nil, fmt.Errorf("jobspec: encoding item for %q: %w", m, err)
		}
		items = append(items, workitem.Item{ID: m, Data: data, Origin: workitem.OriginFresh})
	}
	return items, nil
}

// resolveStaticJSON decodes a JSON array of {"id": ..., "data": ...} entries
// held in InputSource.Items.
func resolveStaticJSON(raw json.RawMessage) ([]workitem.Item, error) {
	var entries []struct {
		ID   string          `json:"id"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("jobspec: decoding static_json items: %w", err)
	}

	items := make([]workitem.Item, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("jobspec: static_json item missing id")
		}
		items = append(items, workitem.Item{ID: e.ID, Data: e.Data, Origin: workitem.OriginFresh})
	}
	return items, nil
}

// resolveLineDelimited reads one work item per non-blank line of path,
// item_id set to the line's 1-based index.
func resolveLineDelimited(path string) ([]workitem.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("jobspec: opening line-delimited input %q: %w", path, err)
	}
	defer f.Close()

	var items []workitem.Item
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		data, err := json.Marshal(map[string]string{"line": line})
		if err != nil {
			return nil, fmt.Errorf("jobspec: encoding line %d: %w", lineNo, err)
		}
		items = append(items, workitem.Item{
			ID:     strconv.Itoa(lineNo),
			Data:   data,
			Origin: workitem.OriginFresh,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("jobspec: scanning %q: %w", path, err)
	}
	return items, nil
}
